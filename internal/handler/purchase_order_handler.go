package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"vendor-service/internal/model"
	"vendor-service/internal/performance"
	"vendor-service/pkg/database"
	"vendor-service/pkg/logger"
	"vendor-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PurchaseOrderRequest defines the structure for purchase order
// creation/update requests. Status, quality rating and the lifecycle
// timestamps are absent on purpose: they move only through the
// dedicated status, acknowledge and quality_rating endpoints, so plain
// field edits can never trigger metric recomputation.
type PurchaseOrderRequest struct {
	PONumber     string         `json:"po_number"`
	VendorID     uint           `json:"vendor_id" validate:"required"`
	OrderDate    time.Time      `json:"order_date"`
	DeliveryDate time.Time      `json:"delivery_date"`
	Items        datatypes.JSON `json:"items"`
	Quantity     int            `json:"quantity"`
	IssueDate    time.Time      `json:"issue_date"`
}

// CreatePurchaseOrder issues a new purchase order to a vendor
func CreatePurchaseOrder(c echo.Context) error {
	log := logger.FromContext(c)
	log.Info("Creating new purchase order")
	prometheus.RecordPurchaseOrderOperation("create")

	var req PurchaseOrderRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid request data",
		})
	}

	// The vendor must exist
	var vendor model.Vendor
	if result := database.GetDB().First(&vendor, req.VendorID); result.Error != nil {
		log.Warn("Vendor not found for purchase order", zap.Uint("vendor_id", req.VendorID))
		return c.JSON(http.StatusNotFound, echo.Map{
			"error": "Vendor not found",
		})
	}

	now := time.Now().UTC()
	po := model.PurchaseOrder{
		PONumber:     req.PONumber,
		VendorID:     req.VendorID,
		OrderDate:    req.OrderDate,
		DeliveryDate: req.DeliveryDate,
		Items:        req.Items,
		Quantity:     req.Quantity,
		Status:       model.OrderPending,
		IssueDate:    req.IssueDate,
	}
	if po.OrderDate.IsZero() {
		po.OrderDate = now
	}
	if po.IssueDate.IsZero() {
		po.IssueDate = now
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("insert")(time.Now())

	// The insert and the PO number assignment commit together, so a
	// concurrent create never observes the transient blank number.
	err := database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&po).Error; err != nil {
			return err
		}
		// Generate a PO number from the row ID when the client omitted one
		if po.PONumber == "" {
			po.PONumber = fmt.Sprintf("PO-%06d", po.ID)
			if err := tx.Model(&po).Update("po_number", po.PONumber).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error("Failed to create purchase order",
			zap.Uint("vendor_id", req.VendorID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "Failed to create purchase order",
		})
	}

	log.Info("Purchase order created successfully",
		zap.Uint("id", po.ID),
		zap.String("po_number", po.PONumber),
		zap.Uint("vendor_id", po.VendorID))
	return c.JSON(http.StatusCreated, po)
}

// GetPurchaseOrder retrieves a purchase order by ID
func GetPurchaseOrder(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordPurchaseOrderOperation("get")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid purchase order ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid purchase order ID",
		})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var po model.PurchaseOrder
	if result := database.GetDB().First(&po, id); result.Error != nil {
		log.Warn("Purchase order not found", zap.Uint64("po_id", id))
		return c.JSON(http.StatusNotFound, echo.Map{
			"error": "Purchase order not found",
		})
	}

	return c.JSON(http.StatusOK, po)
}

// ListPurchaseOrders retrieves purchase orders with pagination,
// optionally filtered by vendor_id
func ListPurchaseOrders(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordPurchaseOrderOperation("list")

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page <= 0 {
		page = 1
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20 // Default limit
	}

	offset := (page - 1) * limit

	query := database.GetDB().Model(&model.PurchaseOrder{})
	if raw := c.QueryParam("vendor_id"); raw != "" {
		vendorID, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{
				"error": "Invalid vendor_id parameter",
			})
		}
		query = query.Where("vendor_id = ?", vendorID)
		log.Info("Filtering purchase orders by vendor", zap.Uint64("vendor_id", vendorID))
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var orders []model.PurchaseOrder
	result := query.
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&orders)

	if result.Error != nil {
		log.Error("Failed to retrieve purchase orders", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "Failed to retrieve purchase orders",
		})
	}

	var total int64
	query.Count(&total)

	return c.JSON(http.StatusOK, echo.Map{
		"purchase_orders": orders,
		"pagination": echo.Map{
			"current_page": page,
			"limit":        limit,
			"total":        total,
			"total_pages":  (int(total) + limit - 1) / limit,
		},
	})
}

// UpdatePurchaseOrder edits a purchase order's descriptive fields. It
// never changes status, quality rating or the lifecycle timestamps, and
// therefore never triggers metric recomputation.
func UpdatePurchaseOrder(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordPurchaseOrderOperation("update")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid purchase order ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid purchase order ID",
		})
	}

	var req PurchaseOrderRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Uint64("po_id", id), zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid request data",
		})
	}

	var po model.PurchaseOrder
	if result := database.GetDB().First(&po, id); result.Error != nil {
		log.Warn("Purchase order not found for update", zap.Uint64("po_id", id))
		return c.JSON(http.StatusNotFound, echo.Map{
			"error": "Purchase order not found",
		})
	}

	if po.Status.Terminal() {
		log.Warn("Attempt to edit a terminal purchase order",
			zap.Uint64("po_id", id),
			zap.String("status", string(po.Status)))
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "Purchase order is in a terminal status and cannot be edited",
		})
	}

	if req.VendorID != 0 && req.VendorID != po.VendorID {
		log.Warn("Attempt to reassign purchase order to another vendor",
			zap.Uint64("po_id", id),
			zap.Uint("current_vendor", po.VendorID),
			zap.Uint("requested_vendor", req.VendorID))
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "Purchase orders cannot be reassigned to another vendor",
		})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	if !req.OrderDate.IsZero() {
		po.OrderDate = req.OrderDate
	}
	if !req.DeliveryDate.IsZero() {
		po.DeliveryDate = req.DeliveryDate
	}
	if req.Items != nil {
		po.Items = req.Items
	}
	if req.Quantity != 0 {
		po.Quantity = req.Quantity
	}

	if result := database.GetDB().Save(&po); result.Error != nil {
		log.Error("Failed to update purchase order", zap.Uint64("po_id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "Failed to update purchase order",
		})
	}

	log.Info("Purchase order updated successfully",
		zap.Uint64("po_id", id),
		zap.String("po_number", po.PONumber))
	return c.JSON(http.StatusOK, po)
}

// DeletePurchaseOrder removes a purchase order
func DeletePurchaseOrder(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordPurchaseOrderOperation("delete")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid purchase order ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid purchase order ID",
		})
	}

	var po model.PurchaseOrder
	if result := database.GetDB().First(&po, id); result.Error != nil {
		log.Warn("Purchase order not found for deletion", zap.Uint64("po_id", id))
		return c.JSON(http.StatusNotFound, echo.Map{
			"error": "Purchase order not found",
		})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())

	if result := database.GetDB().Delete(&po); result.Error != nil {
		log.Error("Failed to delete purchase order", zap.Uint64("po_id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "Failed to delete purchase order",
		})
	}

	log.Info("Purchase order deleted successfully",
		zap.Uint64("po_id", id),
		zap.String("po_number", po.PONumber))
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Purchase order deleted successfully",
	})
}

// AcknowledgePurchaseOrder marks a pending purchase order as acknowledged
// by the vendor, stamping the acknowledgment date and recomputing the
// vendor's average response time
func AcknowledgePurchaseOrder(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordPurchaseOrderOperation("acknowledge")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid purchase order ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid purchase order ID",
		})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	if err := performance.OnStatusChange(database.GetDB(), log, uint(id), model.OrderAcknowledged); err != nil {
		log.Warn("Failed to acknowledge purchase order", zap.Uint64("po_id", id), zap.Error(err))
		return engineError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Purchase order acknowledged successfully",
	})
}

// ChangePurchaseOrderStatus applies a status transition to a purchase
// order and triggers the matching metric recomputations
func ChangePurchaseOrderStatus(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordPurchaseOrderOperation("status_change")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid purchase order ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid purchase order ID",
		})
	}

	var req struct {
		Status model.OrderStatus `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Uint64("po_id", id), zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid request data",
		})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	if err := performance.OnStatusChange(database.GetDB(), log, uint(id), req.Status); err != nil {
		log.Warn("Failed to change purchase order status",
			zap.Uint64("po_id", id),
			zap.String("requested_status", string(req.Status)),
			zap.Error(err))
		return engineError(c, err)
	}

	var po model.PurchaseOrder
	if err := database.GetDB().First(&po, id).Error; err != nil {
		// the order vanished between the transition and the reload
		return c.JSON(http.StatusOK, echo.Map{
			"message": "Purchase order status updated successfully",
		})
	}
	return c.JSON(http.StatusOK, po)
}

// SetPurchaseOrderQualityRating records a quality rating on a completed
// purchase order and recomputes the vendor's quality rating average
func SetPurchaseOrderQualityRating(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordPurchaseOrderOperation("quality_rating")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid purchase order ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid purchase order ID",
		})
	}

	var req struct {
		QualityRating *float64 `json:"quality_rating"`
	}
	if err := c.Bind(&req); err != nil || req.QualityRating == nil {
		log.Error("Invalid request data", zap.Uint64("po_id", id), zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "quality_rating is required",
		})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	if err := performance.OnQualityRatingSet(database.GetDB(), log, uint(id), *req.QualityRating); err != nil {
		log.Warn("Failed to set quality rating",
			zap.Uint64("po_id", id),
			zap.Float64("rating", *req.QualityRating),
			zap.Error(err))
		return engineError(c, err)
	}

	var po model.PurchaseOrder
	if err := database.GetDB().First(&po, id).Error; err != nil {
		// the order vanished between the update and the reload
		return c.JSON(http.StatusOK, echo.Map{
			"message": "Purchase order quality rating set successfully",
		})
	}
	return c.JSON(http.StatusOK, po)
}
