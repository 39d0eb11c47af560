package model

import (
	"time"

	"gorm.io/datatypes"
)

// OrderStatus type for purchase order status
type OrderStatus string

const (
	OrderPending      OrderStatus = "pending"
	OrderAcknowledged OrderStatus = "acknowledged"
	OrderCompleted    OrderStatus = "completed"
	OrderCancelled    OrderStatus = "cancelled"
)

// validTransitions is the purchase order state machine. Completed and
// cancelled are terminal.
var validTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:      {OrderAcknowledged, OrderCancelled},
	OrderAcknowledged: {OrderCompleted, OrderCancelled},
	OrderCompleted:    {},
	OrderCancelled:    {},
}

// IsValid reports whether s is a known order status
func (s OrderStatus) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransitionTo reports whether the status change from s to next is allowed
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s
func (s OrderStatus) Terminal() bool {
	return len(validTransitions[s]) == 0
}

// PurchaseOrder represents a purchase order issued to a vendor.
//
// AcknowledgmentDate is written exactly once, by the pending->acknowledged
// transition. ActualDeliveryDate is written by the transition to completed.
// QualityRating is only meaningful on completed orders.
type PurchaseOrder struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	PONumber string `json:"po_number" gorm:"type:varchar(100);uniqueIndex"`
	VendorID uint   `json:"vendor_id" gorm:"index;not null"`

	OrderDate    time.Time      `json:"order_date"`
	DeliveryDate time.Time      `json:"delivery_date"` // expected delivery
	Items        datatypes.JSON `json:"items"`
	Quantity     int            `json:"quantity"`

	Status             OrderStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	QualityRating      *float64    `json:"quality_rating,omitempty"`
	IssueDate          time.Time   `json:"issue_date"`
	AcknowledgmentDate *time.Time  `json:"acknowledgment_date,omitempty"`
	ActualDeliveryDate *time.Time  `json:"actual_delivery_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
