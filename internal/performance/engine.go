package performance

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"vendor-service/internal/model"
	"vendor-service/prometheus"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Metric identifies one of the four cached vendor performance metrics
type Metric string

const (
	MetricOnTimeDeliveryRate  Metric = "on_time_delivery_rate"
	MetricQualityRatingAvg    Metric = "quality_rating_avg"
	MetricAverageResponseTime Metric = "average_response_time"
	MetricFulfilmentRate      Metric = "fulfilment_rate"
)

// AllMetrics lists every metric the engine maintains
var AllMetrics = []Metric{
	MetricOnTimeDeliveryRate,
	MetricQualityRatingAvg,
	MetricAverageResponseTime,
	MetricFulfilmentRate,
}

// Metrics is a snapshot of the four cached vendor metric values.
// Rates are fractions in [0,1]; response time is in seconds.
type Metrics struct {
	OnTimeDeliveryRate  float64 `json:"on_time_delivery_rate"`
	QualityRatingAvg    float64 `json:"quality_rating_avg"`
	AverageResponseTime float64 `json:"average_response_time"`
	FulfilmentRate      float64 `json:"fulfilment_rate"`
}

// vendorLocks serializes recompute-and-write sequences per vendor.
// Recomputations for different vendors proceed independently.
var vendorLocks sync.Map

func lockVendor(vendorID uint) func() {
	v, _ := vendorLocks.LoadOrStore(vendorID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Recompute recalculates the requested metrics for a vendor from its full
// current purchase order set and writes them onto the vendor's cached
// metric fields. A metric whose evidence set is empty keeps its prior
// cached value; that is a documented no-op, not an error.
//
// The read-compute-write sequence holds the per-vendor lock, so two orders
// for the same vendor completing near-simultaneously cannot lose an update.
func Recompute(db *gorm.DB, log *zap.Logger, vendorID uint, metrics ...Metric) error {
	if len(metrics) == 0 {
		metrics = AllMetrics
	}

	unlock := lockVendor(vendorID)
	defer unlock()

	var vendor model.Vendor
	if err := db.First(&vendor, vendorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: id %d", ErrVendorNotFound, vendorID)
		}
		return err
	}

	var orders []model.PurchaseOrder
	if err := db.Where("vendor_id = ?", vendorID).Find(&orders).Error; err != nil {
		return err
	}

	updates := map[string]interface{}{}
	for _, metric := range metrics {
		switch metric {
		case MetricOnTimeDeliveryRate:
			if rate, ok := onTimeDeliveryRate(orders); ok {
				updates["on_time_delivery_rate"] = rate
			}
		case MetricQualityRatingAvg:
			if avg, ok := qualityRatingAvg(orders); ok {
				updates["quality_rating_avg"] = avg
			}
		case MetricAverageResponseTime:
			if avg, ok := averageResponseTime(orders); ok {
				updates["average_response_time"] = avg
			}
		case MetricFulfilmentRate:
			if rate, ok := fulfilmentRate(orders); ok {
				updates["fulfilment_rate"] = rate
			}
		}
		prometheus.RecordMetricRecompute(string(metric))
	}

	if len(updates) == 0 {
		log.Debug("No metric evidence for vendor, cached values unchanged",
			zap.Uint("vendor_id", vendorID))
		return nil
	}

	if err := db.Model(&vendor).Updates(updates).Error; err != nil {
		return err
	}

	log.Info("Vendor metrics recomputed",
		zap.Uint("vendor_id", vendorID),
		zap.Int("order_count", len(orders)),
		zap.Any("updates", updates))
	return nil
}

// onTimeDeliveryRate is the fraction of completed orders delivered no
// later than their expected delivery date. ok is false when the vendor
// has no completed orders.
func onTimeDeliveryRate(orders []model.PurchaseOrder) (rate float64, ok bool) {
	var completed, onTime int
	for _, po := range orders {
		if po.Status != model.OrderCompleted {
			continue
		}
		completed++
		if po.ActualDeliveryDate != nil && !po.ActualDeliveryDate.After(po.DeliveryDate) {
			onTime++
		}
	}
	if completed == 0 {
		return 0, false
	}
	return float64(onTime) / float64(completed), true
}

// qualityRatingAvg is the arithmetic mean of quality ratings across rated
// completed orders. Unrated orders are excluded from both numerator and
// denominator. ok is false when no rated completed orders exist.
func qualityRatingAvg(orders []model.PurchaseOrder) (avg float64, ok bool) {
	var sum float64
	var rated int
	for _, po := range orders {
		if po.Status != model.OrderCompleted || po.QualityRating == nil {
			continue
		}
		rated++
		sum += *po.QualityRating
	}
	if rated == 0 {
		return 0, false
	}
	return sum / float64(rated), true
}

// averageResponseTime is the mean of (acknowledgment_date - issue_date)
// in seconds over acknowledged orders. ok is false when no order has an
// acknowledgment date.
func averageResponseTime(orders []model.PurchaseOrder) (avg float64, ok bool) {
	var total float64
	var acknowledged int
	for _, po := range orders {
		if po.AcknowledgmentDate == nil {
			continue
		}
		acknowledged++
		total += po.AcknowledgmentDate.Sub(po.IssueDate).Seconds()
	}
	if acknowledged == 0 {
		return 0, false
	}
	return total / float64(acknowledged), true
}

// fulfilmentRate is the fraction of all orders ever issued to the vendor
// that reached completed status. ok is false when the vendor has no orders.
func fulfilmentRate(orders []model.PurchaseOrder) (rate float64, ok bool) {
	if len(orders) == 0 {
		return 0, false
	}
	var completed int
	for _, po := range orders {
		if po.Status == model.OrderCompleted {
			completed++
		}
	}
	return float64(completed) / float64(len(orders)), true
}

// OnStatusChange applies a purchase order status transition and triggers
// the matching metric recomputations:
//
//	completed    -> on-time delivery rate, fulfilment rate, and quality
//	                rating average when a rating is present
//	acknowledged -> average response time
//	cancelled    -> fulfilment rate
//
// An invalid transition fails with ErrInvalidTransition and mutates
// nothing. The acknowledged transition stamps the acknowledgment date
// exactly once; the completed transition stamps the actual delivery date.
func OnStatusChange(db *gorm.DB, log *zap.Logger, poID uint, newStatus model.OrderStatus) error {
	if !newStatus.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, newStatus)
	}

	var po model.PurchaseOrder
	if err := db.First(&po, poID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: id %d", ErrOrderNotFound, poID)
		}
		return err
	}

	if !po.Status.CanTransitionTo(newStatus) {
		prometheus.InvalidTransitionCounter.Inc()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, po.Status, newStatus)
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{"status": newStatus}
	switch newStatus {
	case model.OrderAcknowledged:
		// write-once: only the pending -> acknowledged transition sets it
		if po.AcknowledgmentDate == nil {
			ack := now
			// acknowledgment can never precede issuance
			if ack.Before(po.IssueDate) {
				ack = po.IssueDate
			}
			updates["acknowledgment_date"] = ack
		}
	case model.OrderCompleted:
		if po.ActualDeliveryDate == nil {
			updates["actual_delivery_date"] = now
		}
	}

	// Conditional on the status we validated against, so two racing
	// transitions cannot both succeed: the loser matches zero rows and
	// a terminal state is never overwritten.
	result := db.Model(&model.PurchaseOrder{}).
		Where("id = ? AND status = ?", po.ID, po.Status).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		prometheus.InvalidTransitionCounter.Inc()
		return fmt.Errorf("%w: order %d already left status %s", ErrInvalidTransition, po.ID, po.Status)
	}
	po.Status = newStatus

	log.Info("Purchase order status changed",
		zap.Uint("po_id", po.ID),
		zap.String("po_number", po.PONumber),
		zap.Uint("vendor_id", po.VendorID),
		zap.String("status", string(newStatus)))

	var parts []Metric
	switch newStatus {
	case model.OrderCompleted:
		parts = []Metric{MetricOnTimeDeliveryRate, MetricFulfilmentRate}
		if po.QualityRating != nil {
			parts = append(parts, MetricQualityRatingAvg)
		}
	case model.OrderAcknowledged:
		parts = []Metric{MetricAverageResponseTime}
	case model.OrderCancelled:
		parts = []Metric{MetricFulfilmentRate}
	}

	return Recompute(db, log, po.VendorID, parts...)
}

// OnQualityRatingSet records a quality rating on a completed purchase
// order and recomputes the vendor's quality rating average. Rating an
// order that is not completed fails with ErrInvalidState; a rating
// outside [0,5] fails with ErrValidation.
func OnQualityRatingSet(db *gorm.DB, log *zap.Logger, poID uint, rating float64) error {
	if rating < 0 || rating > 5 {
		return fmt.Errorf("%w: quality rating %.2f outside range [0,5]", ErrValidation, rating)
	}

	var po model.PurchaseOrder
	if err := db.First(&po, poID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: id %d", ErrOrderNotFound, poID)
		}
		return err
	}

	if po.Status != model.OrderCompleted {
		return fmt.Errorf("%w: cannot rate order in status %s", ErrInvalidState, po.Status)
	}

	if err := db.Model(&po).Update("quality_rating", rating).Error; err != nil {
		return err
	}

	log.Info("Purchase order quality rating set",
		zap.Uint("po_id", po.ID),
		zap.Uint("vendor_id", po.VendorID),
		zap.Float64("rating", rating))

	return Recompute(db, log, po.VendorID, MetricQualityRatingAvg)
}

// RecordSnapshot appends the vendor's current cached metric values to the
// performance history log. The snapshot is taken under the per-vendor
// lock so it cannot observe a half-written recomputation.
func RecordSnapshot(db *gorm.DB, vendorID uint) (*model.PerformanceHistory, error) {
	unlock := lockVendor(vendorID)
	defer unlock()

	var vendor model.Vendor
	if err := db.First(&vendor, vendorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrVendorNotFound, vendorID)
		}
		return nil, err
	}

	entry := model.PerformanceHistory{
		VendorID:            vendor.ID,
		RecordedAt:          time.Now().UTC(),
		OnTimeDeliveryRate:  vendor.OnTimeDeliveryRate,
		QualityRatingAvg:    vendor.QualityRatingAvg,
		AverageResponseTime: vendor.AverageResponseTime,
		FulfilmentRate:      vendor.FulfilmentRate,
	}
	if err := db.Create(&entry).Error; err != nil {
		return nil, err
	}

	prometheus.HistorySnapshotsCounter.Inc()
	return &entry, nil
}

// CurrentMetrics returns the vendor's cached metric values. It never
// recomputes; only the lifecycle triggers write these fields.
func CurrentMetrics(db *gorm.DB, vendorID uint) (*Metrics, error) {
	var vendor model.Vendor
	if err := db.First(&vendor, vendorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrVendorNotFound, vendorID)
		}
		return nil, err
	}
	return &Metrics{
		OnTimeDeliveryRate:  vendor.OnTimeDeliveryRate,
		QualityRatingAvg:    vendor.QualityRatingAvg,
		AverageResponseTime: vendor.AverageResponseTime,
		FulfilmentRate:      vendor.FulfilmentRate,
	}, nil
}

// History returns the vendor's performance snapshots ordered by
// recorded_at ascending, optionally bounded by an inclusive time range.
func History(db *gorm.DB, vendorID uint, from, to *time.Time) ([]model.PerformanceHistory, error) {
	var count int64
	if err := db.Model(&model.Vendor{}).Where("id = ?", vendorID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: id %d", ErrVendorNotFound, vendorID)
	}

	query := db.Where("vendor_id = ?", vendorID)
	if from != nil {
		query = query.Where("recorded_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("recorded_at <= ?", *to)
	}

	var entries []model.PerformanceHistory
	if err := query.Order("recorded_at asc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
