package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"vendor-service/internal/model"
	"vendor-service/pkg/config"
	"vendor-service/pkg/database"
	"vendor-service/pkg/jwtutil"
	"vendor-service/prometheus"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	prometheus.InitMetrics(cfg)
	jwtutil.Initialize(&cfg.JWT)
	os.Exit(m.Run())
}

func setupTestDB(t *testing.T) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Vendor{},
		&model.PurchaseOrder{},
		&model.PerformanceHistory{},
	))
	database.SetDB(db)
}

// request runs a handler directly against an Echo context and returns
// the response recorder
func request(t *testing.T, h echo.HandlerFunc, method, target, body string, params map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	names := make([]string, 0, len(params))
	values := make([]string, 0, len(params))
	for name, value := range params {
		names = append(names, name)
		values = append(values, value)
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	require.NoError(t, h(c))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestCreateVendorAndDuplicateCode(t *testing.T) {
	setupTestDB(t)

	rec := request(t, CreateVendor, http.MethodPost, "/api/vendors",
		`{"name":"Acme Supplies","contact_details":"acme@example.com","address":"1 Acme Way","vendor_code":"ACME01"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created model.Vendor
	decode(t, rec, &created)
	require.NotZero(t, created.ID)
	require.Equal(t, "ACME01", created.VendorCode)
	require.Zero(t, created.OnTimeDeliveryRate)

	rec = request(t, CreateVendor, http.MethodPost, "/api/vendors",
		`{"name":"Acme Clone","vendor_code":"ACME01"}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetVendorNotFound(t *testing.T) {
	setupTestDB(t)

	rec := request(t, GetVendor, http.MethodGet, "/api/vendors/42", "", map[string]string{"id": "42"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = request(t, GetVendor, http.MethodGet, "/api/vendors/abc", "", map[string]string{"id": "abc"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateVendorCodeImmutable(t *testing.T) {
	setupTestDB(t)

	vendor := model.Vendor{Name: "Acme", VendorCode: "ACME02"}
	require.NoError(t, database.GetDB().Create(&vendor).Error)

	rec := request(t, UpdateVendor, http.MethodPut, "/api/vendors/1",
		`{"name":"Acme Renamed","vendor_code":"OTHER"}`,
		map[string]string{"id": fmt.Sprint(vendor.ID)})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = request(t, UpdateVendor, http.MethodPut, "/api/vendors/1",
		`{"name":"Acme Renamed","vendor_code":"ACME02"}`,
		map[string]string{"id": fmt.Sprint(vendor.ID)})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated model.Vendor
	decode(t, rec, &updated)
	require.Equal(t, "Acme Renamed", updated.Name)
	require.Equal(t, "ACME02", updated.VendorCode)
}

func TestUpdateVendorRequiresName(t *testing.T) {
	setupTestDB(t)

	vendor := model.Vendor{Name: "Acme", VendorCode: "ACME06"}
	require.NoError(t, database.GetDB().Create(&vendor).Error)

	// A PUT omitting the name must not blank it
	rec := request(t, UpdateVendor, http.MethodPut, "/api/vendors/1",
		`{"contact_details":"new@example.com"}`,
		map[string]string{"id": fmt.Sprint(vendor.ID)})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var reloaded model.Vendor
	require.NoError(t, database.GetDB().First(&reloaded, vendor.ID).Error)
	require.Equal(t, "Acme", reloaded.Name)
}

func TestCreatePurchaseOrderGeneratesDistinctNumbers(t *testing.T) {
	setupTestDB(t)

	vendor := model.Vendor{Name: "Acme", VendorCode: "ACME07"}
	require.NoError(t, database.GetDB().Create(&vendor).Error)

	numbers := map[string]bool{}
	for i := 0; i < 2; i++ {
		rec := request(t, CreatePurchaseOrder, http.MethodPost, "/api/purchase_orders",
			fmt.Sprintf(`{"vendor_id":%d,"quantity":5}`, vendor.ID), nil)
		require.Equal(t, http.StatusCreated, rec.Code)

		var po model.PurchaseOrder
		decode(t, rec, &po)
		require.Equal(t, fmt.Sprintf("PO-%06d", po.ID), po.PONumber)
		numbers[po.PONumber] = true
	}
	require.Len(t, numbers, 2)
}

func TestDeleteVendorRestrictedWithOrders(t *testing.T) {
	setupTestDB(t)

	vendor := model.Vendor{Name: "Acme", VendorCode: "ACME03"}
	require.NoError(t, database.GetDB().Create(&vendor).Error)
	require.NoError(t, database.GetDB().Create(&model.PurchaseOrder{
		PONumber: "PO-900001",
		VendorID: vendor.ID,
		Status:   model.OrderPending,
	}).Error)

	rec := request(t, DeleteVendor, http.MethodDelete, "/api/vendors/1", "",
		map[string]string{"id": fmt.Sprint(vendor.ID)})
	require.Equal(t, http.StatusConflict, rec.Code)

	require.NoError(t, database.GetDB().
		Where("vendor_id = ?", vendor.ID).
		Delete(&model.PurchaseOrder{}).Error)

	rec = request(t, DeleteVendor, http.MethodDelete, "/api/vendors/1", "",
		map[string]string{"id": fmt.Sprint(vendor.ID)})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPurchaseOrderLifecycleThroughHandlers(t *testing.T) {
	setupTestDB(t)

	vendor := model.Vendor{Name: "Acme", VendorCode: "ACME04"}
	require.NoError(t, database.GetDB().Create(&vendor).Error)

	// Create a purchase order; the PO number is generated
	rec := request(t, CreatePurchaseOrder, http.MethodPost, "/api/purchase_orders",
		fmt.Sprintf(`{"vendor_id":%d,"quantity":10,"issue_date":"2026-01-01T00:00:00Z","delivery_date":"2030-01-01T00:00:00Z","items":[{"sku":"W-1","qty":10}]}`, vendor.ID), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var po model.PurchaseOrder
	decode(t, rec, &po)
	require.Equal(t, model.OrderPending, po.Status)
	require.Equal(t, fmt.Sprintf("PO-%06d", po.ID), po.PONumber)

	poID := fmt.Sprint(po.ID)

	// Rating a pending order is rejected
	rec = request(t, SetPurchaseOrderQualityRating, http.MethodPost, "/api/purchase_orders/1/quality_rating",
		`{"quality_rating":4}`, map[string]string{"id": poID})
	require.Equal(t, http.StatusConflict, rec.Code)

	// Acknowledge, then complete
	rec = request(t, AcknowledgePurchaseOrder, http.MethodPost, "/api/purchase_orders/1/acknowledge",
		"", map[string]string{"id": poID})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = request(t, ChangePurchaseOrderStatus, http.MethodPost, "/api/purchase_orders/1/status",
		`{"status":"completed"}`, map[string]string{"id": poID})
	require.Equal(t, http.StatusOK, rec.Code)

	// The response carries the order as stored after the transition
	var completed model.PurchaseOrder
	decode(t, rec, &completed)
	require.Equal(t, po.ID, completed.ID)
	require.Equal(t, model.OrderCompleted, completed.Status)
	require.NotNil(t, completed.ActualDeliveryDate)

	// Completed orders cannot go back
	rec = request(t, ChangePurchaseOrderStatus, http.MethodPost, "/api/purchase_orders/1/status",
		`{"status":"pending"}`, map[string]string{"id": poID})
	require.Equal(t, http.StatusConflict, rec.Code)

	// Rate the completed order
	rec = request(t, SetPurchaseOrderQualityRating, http.MethodPost, "/api/purchase_orders/1/quality_rating",
		`{"quality_rating":4}`, map[string]string{"id": poID})
	require.Equal(t, http.StatusOK, rec.Code)

	// Cached metrics reflect the lifecycle
	rec = request(t, GetVendorPerformance, http.MethodGet, "/api/vendors/1/performance",
		"", map[string]string{"id": fmt.Sprint(vendor.ID)})
	require.Equal(t, http.StatusOK, rec.Code)

	var metrics map[string]float64
	decode(t, rec, &metrics)
	require.InDelta(t, 1.0, metrics["fulfilment_rate"], 1e-9)
	require.InDelta(t, 1.0, metrics["on_time_delivery_rate"], 1e-9)
	require.InDelta(t, 4.0, metrics["quality_rating_avg"], 1e-9)
	require.Greater(t, metrics["average_response_time"], 0.0)
}

func TestVendorPerformanceEndpoints(t *testing.T) {
	setupTestDB(t)

	rec := request(t, GetVendorPerformance, http.MethodGet, "/api/vendors/42/performance",
		"", map[string]string{"id": "42"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	vendor := model.Vendor{Name: "Acme", VendorCode: "ACME05"}
	require.NoError(t, database.GetDB().Create(&vendor).Error)

	// Two snapshots produce two distinct history entries
	for i := 0; i < 2; i++ {
		rec = request(t, RecordVendorPerformance, http.MethodPost,
			"/api/vendors/1/record_historical_performance", "",
			map[string]string{"id": fmt.Sprint(vendor.ID)})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = request(t, GetVendorPerformanceHistory, http.MethodGet,
		"/api/vendors/1/performance/history", "",
		map[string]string{"id": fmt.Sprint(vendor.ID)})
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Count   int                        `json:"count"`
		History []model.PerformanceHistory `json:"history"`
	}
	decode(t, rec, &payload)
	require.Equal(t, 2, payload.Count)
	require.Len(t, payload.History, 2)

	rec = request(t, GetVendorPerformanceHistory, http.MethodGet,
		"/api/vendors/1/performance/history?from=not-a-time", "",
		map[string]string{"id": fmt.Sprint(vendor.ID)})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	setupTestDB(t)

	rec := request(t, Register, http.MethodPost, "/api/auth/register",
		`{"email":"buyer@example.com","password":"secret"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = request(t, Register, http.MethodPost, "/api/auth/register",
		`{"email":"buyer@example.com","password":"secret"}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = request(t, Login, http.MethodPost, "/api/auth/login",
		`{"email":"buyer@example.com","password":"secret"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Token string `json:"token"`
	}
	decode(t, rec, &resp)
	require.NotEmpty(t, resp.Token)

	claims, err := jwtutil.ValidateToken(resp.Token)
	require.NoError(t, err)
	require.Equal(t, "buyer@example.com", claims.Email)

	rec = request(t, Login, http.MethodPost, "/api/auth/login",
		`{"email":"buyer@example.com","password":"wrong"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
