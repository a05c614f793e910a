package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clore-watch/internal/database"
	"clore-watch/internal/models"
	"clore-watch/internal/services/clore"
	"clore-watch/internal/store"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRouter(t *testing.T) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	st := store.New(db)
	registry := clore.NewRegistry(clore.DefaultBaseURL, time.Second)

	r := gin.New()
	SetupRoutes(r.Group("/api"), st, registry, 0.02)
	return r, st
}

func seedUser(t *testing.T, st *store.Store) *models.User {
	t.Helper()
	user := &models.User{ExternalID: 1, Username: "tester", APIKey: "key", IsActive: true}
	if err := st.Users.Create(user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListOrdersUnknownUser(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, "GET", "/api/users/99/orders", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestActiveOrdersEndpoint(t *testing.T) {
	r, st := newTestRouter(t)
	user := seedUser(t, st)

	if _, err := st.Orders.Reconcile(user.ID, []clore.Order{
		{ID: 100, ServerID: 7, Price: 1.0, Currency: clore.CurrencyClore, CT: time.Now().Unix(), MRL: 86400},
	}); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	w := doJSON(t, r, "GET", fmt.Sprintf("/api/users/%d/orders/active", user.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Orders []models.Order `json:"orders"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Orders) != 1 || resp.Orders[0].CloreOrderID != 100 {
		t.Fatalf("unexpected orders: %#v", resp.Orders)
	}
}

func TestTaskLifecycle(t *testing.T) {
	r, st := newTestRouter(t)
	user := seedUser(t, st)

	ceiling := 10.0
	w := doJSON(t, r, "POST", fmt.Sprintf("/api/users/%d/tasks", user.ID), gin.H{
		"name": "cheap 4090",
		"criteria": gin.H{
			"gpu_models":        []string{"RTX 4090"},
			"max_price_per_gpu": ceiling,
		},
		"auto_rent": true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		Task models.HuntTask `json:"task"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Task.MaxServers != 1 {
		t.Fatalf("quota should default to 1, got %d", created.Task.MaxServers)
	}

	// Pause the task
	w = doJSON(t, r, "PATCH", fmt.Sprintf("/api/tasks/%d", created.Task.ID), gin.H{
		"is_active": false,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	task, err := st.Tasks.Get(created.Task.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if task.IsActive {
		t.Fatal("task still active after pause")
	}

	w = doJSON(t, r, "GET", fmt.Sprintf("/api/users/%d/tasks", user.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
}

func TestAlertDeliveryCallback(t *testing.T) {
	r, st := newTestRouter(t)
	user := seedUser(t, st)

	alert, err := st.Alerts.Create(user.ID, models.AlertHuntFound, "Server found", "msg")
	if err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	w := doJSON(t, r, "GET", fmt.Sprintf("/api/users/%d/alerts/pending", user.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("pending: expected 200, got %d", w.Code)
	}

	w = doJSON(t, r, "POST", fmt.Sprintf("/api/alerts/%d/delivered", alert.ID), gin.H{})
	if w.Code != http.StatusOK {
		t.Fatalf("delivered: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	pending, err := st.Alerts.Pending(user.ID)
	if err != nil {
		t.Fatalf("pending query: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("alert still pending: %#v", pending)
	}

	// Unknown alert ids are rejected
	w = doJSON(t, r, "POST", "/api/alerts/424242/delivered", gin.H{})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown alert: expected 404, got %d", w.Code)
	}
}

func TestDeactivateEndpoint(t *testing.T) {
	r, st := newTestRouter(t)
	user := seedUser(t, st)

	w := doJSON(t, r, "POST", fmt.Sprintf("/api/users/%d/deactivate", user.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	users, err := st.Users.ActiveWithAPIKeys()
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("user still active: %#v", users)
	}
}

func TestSnapshotExportProducesWorkbook(t *testing.T) {
	r, st := newTestRouter(t)
	user := seedUser(t, st)

	srv := clore.Server{
		ID: 5,
		Specs: clore.ServerSpecs{
			GPU: "1x NVIDIA GeForce RTX 4090",
			RAM: 64,
		},
		Price: clore.ServerPrice{USD: map[string]float64{"on_demand_clore": 2.4}},
	}
	if _, err := st.Snapshots.RecordServer(user.ID, models.SnapshotMarketplace, srv, 0.02, time.Now().UTC()); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	w := doJSON(t, r, "GET", fmt.Sprintf("/api/users/%d/snapshots/export", user.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if w.Body.Len() == 0 {
		t.Fatal("empty workbook")
	}
}
