package handler

import (
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
)

// VendorRequest defines the structure for vendor creation/update requests.
// The cached performance metric fields are deliberately absent: they are
// owned by the performance engine and cannot be set by clients.
type VendorRequest struct {
	Name           string `json:"name" validate:"required"`
	ContactDetails string `json:"contact_details"`
	Address        string `json:"address"`
	VendorCode     string `json:"vendor_code" validate:"required"`
}

// CreateVendor registers a new vendor
func CreateVendor(c echo.Context) error {
	log := logger.FromContext(c)
	log.Info("Creating new vendor")
	prometheus.RecordVendorOperation("create")

	var req VendorRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid request data",
		})
	}

	if req.Name == "" || req.VendorCode == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "name and vendor_code are required",
		})
	}

	// Check if a vendor with the same code exists
	var count int64
	database.GetDB().Model(&model.Vendor{}).
		Where("vendor_code = ?", req.VendorCode).
		Count(&count)
	if count > 0 {
		log.Warn("Vendor with this code already exists", zap.String("vendor_code", req.VendorCode))
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "Vendor with this code already exists",
		})
	}

	vendor := model.Vendor{
		Name:           req.Name,
		ContactDetails: req.ContactDetails,
		Address:        req.Address,
		VendorCode:     req.VendorCode,
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("insert")(time.Now())

	result := database.GetDB().Create(&vendor)
	if result.Error != nil {
		log.Error("Failed to create vendor",
			zap.String("name", req.Name),
			zap.String("vendor_code", req.VendorCode),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "Failed to create vendor",
		})
	}

	// Update vendor count metric
	go updateVendorCount()

	log.Info("Vendor created successfully",
		zap.Uint("id", vendor.ID),
		zap.String("name", vendor.Name),
		zap.String("vendor_code", vendor.VendorCode))
	return c.JSON(http.StatusCreated, vendor)
}

// GetVendor retrieves a vendor by ID
func GetVendor(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordVendorOperation("get")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid vendor ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid vendor ID",
		})
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("query")(time.Now())

	var vendor model.Vendor
	result := database.GetDB().First(&vendor, id)
	if result.Error != nil {
		log.Warn("Vendor not found", zap.Uint64("vendor_id", id), zap.Error(result.Error))
		return c.JSON(http.StatusNotFound, echo.Map{
			"error": "Vendor not found",
		})
	}

	return c.JSON(http.StatusOK, vendor)
}

// ListVendors retrieves all vendors with pagination
func ListVendors(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordVendorOperation("list")

	// Parse query parameters for pagination
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page <= 0 {
		page = 1
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20 // Default limit
	}

	offset := (page - 1) * limit

	// Track DB operations
	defer prometheus.TrackDBOperation("query")(time.Now())

	var vendors []model.Vendor
	result := database.GetDB().
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&vendors)

	if result.Error != nil {
		log.Error("Failed to retrieve vendors", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "Failed to retrieve vendors",
		})
	}

	// Count total vendors for pagination info
	var total int64
	database.GetDB().Model(&model.Vendor{}).Count(&total)

	log.Info("Vendors retrieved successfully",
		zap.Int("count", len(vendors)),
		zap.Int64("total", total))

	return c.JSON(http.StatusOK, echo.Map{
		"vendors": vendors,
		"pagination": echo.Map{
			"current_page": page,
			"limit":        limit,
			"total":        total,
			"total_pages":  (int(total) + limit - 1) / limit,
		},
	})
}

// UpdateVendor updates a vendor's descriptive fields. The vendor code is
// immutable and the cached metric fields are never touched here.
func UpdateVendor(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordVendorOperation("update")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid vendor ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid vendor ID",
		})
	}

	var req VendorRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Uint64("vendor_id", id), zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid request data",
		})
	}

	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "name is required",
		})
	}

	var vendor model.Vendor
	result := database.GetDB().First(&vendor, id)
	if result.Error != nil {
		log.Warn("Vendor not found for update", zap.Uint64("vendor_id", id), zap.Error(result.Error))
		return c.JSON(http.StatusNotFound, echo.Map{
			"error": "Vendor not found",
		})
	}

	if req.VendorCode != "" && req.VendorCode != vendor.VendorCode {
		log.Warn("Attempt to change immutable vendor code",
			zap.Uint64("vendor_id", id),
			zap.String("current_code", vendor.VendorCode),
			zap.String("requested_code", req.VendorCode))
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "vendor_code is immutable",
		})
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("update")(time.Now())

	vendor.Name = req.Name
	vendor.ContactDetails = req.ContactDetails
	vendor.Address = req.Address

	result = database.GetDB().Save(&vendor)
	if result.Error != nil {
		log.Error("Failed to update vendor", zap.Uint64("vendor_id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "Failed to update vendor",
		})
	}

	log.Info("Vendor updated successfully",
		zap.Uint64("vendor_id", id),
		zap.String("name", vendor.Name))
	return c.JSON(http.StatusOK, vendor)
}

// DeleteVendor deletes a vendor. Deletion is restricted: a vendor that
// still has purchase orders referencing it cannot be removed.
func DeleteVendor(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordVendorOperation("delete")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid vendor ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid vendor ID",
		})
	}

	var vendor model.Vendor
	if result := database.GetDB().First(&vendor, id); result.Error != nil {
		log.Warn("Vendor not found for deletion", zap.Uint64("vendor_id", id))
		return c.JSON(http.StatusNotFound, echo.Map{
			"error": "Vendor not found",
		})
	}

	var orderCount int64
	database.GetDB().Model(&model.PurchaseOrder{}).
		Where("vendor_id = ?", id).
		Count(&orderCount)
	if orderCount > 0 {
		log.Warn("Vendor has purchase orders, deletion refused",
			zap.Uint64("vendor_id", id),
			zap.Int64("order_count", orderCount))
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "Vendor has purchase orders and cannot be deleted",
		})
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("delete")(time.Now())

	if result := database.GetDB().Delete(&vendor); result.Error != nil {
		log.Error("Failed to delete vendor", zap.Uint64("vendor_id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "Failed to delete vendor",
		})
	}

	// Update vendor count metric
	go updateVendorCount()

	log.Info("Vendor deleted successfully", zap.Uint64("vendor_id", id))
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Vendor deleted successfully",
	})
}

// GetVendorPerformance returns the vendor's cached performance metrics.
// Reads never trigger recomputation; the metric fields change only
// through the purchase order lifecycle triggers.
func GetVendorPerformance(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordVendorOperation("performance")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid vendor ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid vendor ID",
		})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	metrics, err := performance.CurrentMetrics(database.GetDB(), uint(id))
	if err != nil {
		log.Warn("Failed to get vendor performance", zap.Uint64("vendor_id", id), zap.Error(err))
		return engineError(c, err)
	}

	return c.JSON(http.StatusOK, metrics)
}

// RecordVendorPerformance appends a snapshot of the vendor's current
// metrics to the performance history log
func RecordVendorPerformance(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordVendorOperation("record_performance")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid vendor ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid vendor ID",
		})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	entry, err := performance.RecordSnapshot(database.GetDB(), uint(id))
	if err != nil {
		log.Warn("Failed to record vendor performance", zap.Uint64("vendor_id", id), zap.Error(err))
		return engineError(c, err)
	}

	log.Info("Vendor performance recorded",
		zap.Uint64("vendor_id", id),
		zap.Uint("history_id", entry.ID),
		zap.Time("recorded_at", entry.RecordedAt))
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Recorded performance of vendor successfully",
		"record":  entry,
	})
}

// GetVendorPerformanceHistory returns the vendor's performance snapshots
// ordered by recording time, optionally bounded by from/to query
// parameters in RFC 3339 format
func GetVendorPerformanceHistory(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordVendorOperation("performance_history")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid vendor ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid vendor ID",
		})
	}

	var from, to *time.Time
	if raw := c.QueryParam("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{
				"error": "Invalid 'from' timestamp, expected RFC 3339",
			})
		}
		from = &t
	}
	if raw := c.QueryParam("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{
				"error": "Invalid 'to' timestamp, expected RFC 3339",
			})
		}
		to = &t
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	entries, err := performance.History(database.GetDB(), uint(id), from, to)
	if err != nil {
		log.Warn("Failed to get performance history", zap.Uint64("vendor_id", id), zap.Error(err))
		return engineError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"history": entries,
		"count":   len(entries),
	})
}

// Helper function to update the registered vendors gauge
func updateVendorCount() {
	var count int64
	database.GetDB().Model(&model.Vendor{}).Count(&count)
	prometheus.UpdateVendorCount(int(count))
}
