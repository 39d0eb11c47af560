package model

import (
	"time"
)

// Vendor represents the vendor model stored in the database.
//
// The four performance fields are denormalized caches derived from the
// vendor's purchase order history. They are written only by the
// performance engine, never directly by API clients.
type Vendor struct {
	ID             uint   `json:"id" gorm:"primaryKey"`
	Name           string `json:"name" gorm:"type:varchar(100);index;not null"`
	ContactDetails string `json:"contact_details" gorm:"type:text"`
	Address        string `json:"address" gorm:"type:text"`
	// VendorCode is unique and immutable after creation
	VendorCode string `json:"vendor_code" gorm:"type:varchar(100);uniqueIndex;not null"`

	// Cached performance metrics. Rates are fractions in [0,1],
	// response time is in seconds. Zero until first evidence exists;
	// afterwards they keep their last computed value.
	OnTimeDeliveryRate  float64 `json:"on_time_delivery_rate" gorm:"default:0"`
	QualityRatingAvg    float64 `json:"quality_rating_avg" gorm:"default:0"`
	AverageResponseTime float64 `json:"average_response_time" gorm:"default:0"`
	FulfilmentRate      float64 `json:"fulfilment_rate" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
