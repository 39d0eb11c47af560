package model

import (
	"time"
)

// PerformanceHistory is an append-only snapshot of a vendor's cached
// performance metrics at the moment of recording. Entries are never
// updated or deleted; trend queries order them by RecordedAt.
type PerformanceHistory struct {
	ID       uint `json:"id" gorm:"primaryKey"`
	VendorID uint `json:"vendor_id" gorm:"index;not null"`

	RecordedAt time.Time `json:"recorded_at" gorm:"index;not null"`

	OnTimeDeliveryRate  float64 `json:"on_time_delivery_rate"`
	QualityRatingAvg    float64 `json:"quality_rating_avg"`
	AverageResponseTime float64 `json:"average_response_time"`
	FulfilmentRate      float64 `json:"fulfilment_rate"`
}
