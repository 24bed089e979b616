package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/devadigapratham/microdose/api/handlers"
	"github.com/devadigapratham/microdose/api/models"
	"github.com/devadigapratham/microdose/dosing"
	"github.com/devadigapratham/microdose/metrics"
	"github.com/devadigapratham/microdose/store"
)

type fakeSource struct {
	order dosing.Order
	err   error
}

func (f fakeSource) FetchOrder(_ context.Context, orderID string) (dosing.Order, error) {
	if f.err != nil {
		return dosing.Order{}, f.err
	}
	return dosing.NewOrder(orderID, f.order.RecipeName, f.order.Lines), nil
}

type testServer struct {
	router *gin.Engine
	orders *dosing.Manager
	log    *dosing.MemoryLog
}

func newTestServer(t *testing.T, source handlers.OrderSource) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	memLog := dosing.NewMemoryLog()
	orders := dosing.NewManager(dosing.StationConfig{
		Log:      memLog,
		Scanner:  dosing.NewDelayScanner(10 * time.Millisecond),
		Observer: metrics.NewRecorder(reg),
	})
	t.Cleanup(orders.Close)

	zl := zaptest.NewLogger(t)
	h := &handlers.Handler{
		Orders:  orders,
		History: memLog,
		Prefs:   store.NewMemoryPreferences(),
		Source:  source,
		Log:     zl.Sugar(),
	}
	router := SetupRouter(h, RouterOptions{
		Health:   healthcheck.NewHandler(),
		Gatherer: reg,
		Logger:   zl,
	})
	return &testServer{router: router, orders: orders, log: memLog}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Kind   string        `json:"kind"`
	Detail string        `json:"detail"`
	Range  *dosing.Range `json:"range"`
}

type actionBody struct {
	Event dosing.DosingEvent `json:"event"`
	Order models.OrderView   `json:"order"`
}

var orderRequest = map[string]any{
	"order_id":    "o1",
	"recipe_name": "Formula A",
	"lines": []map[string]any{
		{"id": "1", "title": "Sugar", "barcode": "SUG-001", "set_point": 100, "unit": "g"},
		{"id": "2", "title": "Water", "unit": "ml"},
	},
}

func TestDosingWorkflow(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/orders", orderRequest)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	view := decode[models.OrderView](t, w)
	assert.Equal(t, "o1", view.OrderID)
	require.Len(t, view.Lines, 2)
	assert.True(t, view.Lines[0].Current)
	assert.Equal(t, dosing.StatusPending, view.Lines[0].Status)

	w = s.do(t, http.MethodPost, "/api/v1/orders", orderRequest)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Nothing is in progress before a scan
	w = s.do(t, http.MethodPost, "/api/v1/orders/o1/confirm", map[string]any{"actual": 100})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NoCurrentMaterial", decode[errorBody](t, w).Kind)

	w = s.do(t, http.MethodPost, "/api/v1/orders/o1/scan", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	require.Eventually(t, func() bool {
		w := s.do(t, http.MethodGet, "/api/v1/orders/o1", nil)
		return decode[models.OrderView](t, w).BarcodeMatched
	}, 2*time.Second, 10*time.Millisecond)

	w = s.do(t, http.MethodPost, "/api/v1/orders/o1/confirm", map[string]any{"actual": 10})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	eb := decode[errorBody](t, w)
	assert.Equal(t, "OutOfTolerance", eb.Kind)
	require.NotNil(t, eb.Range)
	assert.Equal(t, 50.0, eb.Range.Min)
	assert.Equal(t, 150.0, eb.Range.Max)

	w = s.do(t, http.MethodPost, "/api/v1/orders/o1/confirm", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/orders/o1/confirm", map[string]any{"actual": 110})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ab := decode[actionBody](t, w)
	assert.Equal(t, dosing.OutcomeCompleted, ab.Event.Outcome)
	assert.Equal(t, "10.00%", ab.Order.Lines[0].ErrorPercent)
	assert.Equal(t, dosing.StatusDosed, ab.Order.Lines[0].Status)
	assert.Equal(t, 1, ab.Order.CurrentIndex)

	w = s.do(t, http.MethodPost, "/api/v1/orders/o1/scan", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "MissingBarcode", decode[errorBody](t, w).Kind)

	w = s.do(t, http.MethodPost, "/api/v1/orders/o1/bypass", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ab = decode[actionBody](t, w)
	assert.Equal(t, dosing.OutcomeBypassed, ab.Event.Outcome)
	assert.True(t, ab.Order.Complete)

	w = s.do(t, http.MethodPost, "/api/v1/orders/o1/bypass", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "OrderComplete", decode[errorBody](t, w).Kind)

	w = s.do(t, http.MethodGet, "/api/v1/dosing_events?order_id=o1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]dosing.DosingEvent](t, w), 2)

	w = s.do(t, http.MethodGet, "/api/v1/dosing_events?outcome=bypassed", nil)
	events := decode[[]dosing.DosingEvent](t, w)
	require.Len(t, events, 1)
	assert.Equal(t, "2", events[0].MaterialID)
	assert.Equal(t, 0.0, events[0].ActualQuantity)

	w = s.do(t, http.MethodGet, "/api/v1/dosing_events?outcome=spilled", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// A completed order can be opened again
	w = s.do(t, http.MethodPost, "/api/v1/orders", orderRequest)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `microdose_dosing_events_total{outcome="bypassed"} 1`)
}

func TestOrderErrors(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/v1/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/orders/missing/scan", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/orders", map[string]any{"lines": []map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/orders", map[string]any{"lines": []map[string]any{{"id": "1"}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/orders/fetch", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]models.OrderView](t, w))
}

func TestCreateOrderGeneratesID(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/orders", map[string]any{
		"lines": []map[string]any{{"id": "1", "title": "Oil"}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, decode[models.OrderView](t, w).OrderID)
}

func TestFetchOrder(t *testing.T) {
	src := fakeSource{order: dosing.NewOrder("", "Lemonade", []dosing.MaterialLine{
		{ID: "11", Title: "Sugar", BarcodeCode: "SUG-001", SetPoint: dosing.Float(100)},
	})}
	s := newTestServer(t, src)

	w := s.do(t, http.MethodPost, "/api/v1/orders/fetch", map[string]any{"order_id": "from-backend"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	view := decode[models.OrderView](t, w)
	assert.Equal(t, "from-backend", view.OrderID)
	assert.Equal(t, "Lemonade", view.RecipeName)

	_, err := s.orders.Get("from-backend")
	assert.NoError(t, err)

	empty := newTestServer(t, fakeSource{})
	w = empty.do(t, http.MethodPost, "/api/v1/orders/fetch", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	failing := newTestServer(t, fakeSource{err: errors.New("connection refused")})
	w = failing.do(t, http.MethodPost, "/api/v1/orders/fetch", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestSortOrderPreferences(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/v1/preferences/sort/materials", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"page":"materials","ids":[]}`, w.Body.String())

	w = s.do(t, http.MethodPut, "/api/v1/preferences/sort/materials", map[string]any{"ids": []string{"3", "1"}})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/preferences/sort/materials", nil)
	assert.JSONEq(t, `{"page":"materials","ids":["3","1"]}`, w.Body.String())
}

func TestBarcodeAndProbes(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/v1/barcodes/SUG-001?width=400&height=80", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Body.Bytes())

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/live", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/ready", nil).Code)
}
