package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbrandao/opchat/internal/dialog"
	"github.com/mbrandao/opchat/internal/extract"
	"github.com/mbrandao/opchat/internal/models"
	"github.com/mbrandao/opchat/internal/session"
	"github.com/mbrandao/opchat/internal/store"
)

// echoExtractor routes every message to the chat fallback.
type echoExtractor struct{}

func (echoExtractor) Extract(context.Context, string, *models.OrderDraft, []string) (*extract.Result, error) {
	return &extract.Result{}, nil
}

func (echoExtractor) Chat(_ context.Context, message string, _ []string) (string, error) {
	return "echo: " + message, nil
}

func newTestServer(t *testing.T) (*Server, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	orch := dialog.New(st, session.NewMemoryStore(), echoExtractor{}, dialog.Config{})
	return NewServer(st, orch, nil), st
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func seedOrder(t *testing.T, st *store.SQLiteStore, client string) *models.Order {
	t.Helper()
	o := &models.Order{ClientName: client, DeliveryDate: "2026-10-01"}
	require.NoError(t, st.CreateOrder(context.Background(), o))
	return o
}

func TestChat_RequiresMessage(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), "POST", "/api/v1/chat", ChatRequest{SessionID: "s1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_ReturnsReply(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), "POST", "/api/v1/chat", ChatRequest{SessionID: "s1", Message: "hello"})
	require.Equal(t, http.StatusOK, rec.Code)

	var reply dialog.Reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, "echo: hello", reply.Text)
}

func TestOrders_CreateGetUpdate(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()

	rec := doJSON(t, h, "POST", "/api/v1/orders", models.Order{
		ClientName:   "Acme",
		DeliveryDate: "2026-11-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Len(t, created.Code, 6)
	assert.Equal(t, models.OrderStatusInProduction, created.Status)

	rec = doJSON(t, h, "GET", "/api/v1/orders/"+created.Code, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, "PUT", "/api/v1/orders/"+created.Code, map[string]any{"tax": 23.0})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, 23.0, updated.Tax)
}

func TestOrders_CreateRequiresClient(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), "POST", "/api/v1/orders", models.Order{DeliveryDate: "2026-11-01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrders_CreateDuplicateCodeIs409(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()

	order := models.Order{Code: "DUP123", ClientName: "Acme", DeliveryDate: "2026-11-01"}
	rec := doJSON(t, h, "POST", "/api/v1/orders", order)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, "POST", "/api/v1/orders", order)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOrders_GetUnknownIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), "GET", "/api/v1/orders/ZZZZZZ", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrders_DeleteCascades(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Router()
	ctx := context.Background()

	o := seedOrder(t, st, "Beta")
	_, err := st.CreateParts(ctx, o.Code, []models.PartDraft{{Name: "plate", Quantity: 3}})
	require.NoError(t, err)
	require.NoError(t, st.CreateAlert(ctx, &models.Alert{OrderCode: o.Code, PartName: "plate", Reason: "overdue"}))

	rec := doJSON(t, h, "DELETE", "/api/v1/orders/"+o.Code, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, err = st.GetOrder(ctx, o.Code)
	assert.ErrorIs(t, err, store.ErrNotFound)
	parts, err := st.GetOrderParts(ctx, o.Code)
	require.NoError(t, err)
	assert.Empty(t, parts)
	alerts, err := st.ListAlerts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestParts_CreateAndList(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Router()
	o := seedOrder(t, st, "Gamma")

	rec := doJSON(t, h, "POST", "/api/v1/orders/"+o.Code+"/parts", []models.PartDraft{
		{Name: "gear", Quantity: 5, UnitPrice: 12},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var parts []*models.Part
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parts))
	require.Len(t, parts, 1)
	assert.Equal(t, "Gamma", parts[0].ClientName)
	assert.Equal(t, "2026-10-01", parts[0].DeliveryDate)

	rec = doJSON(t, h, "GET", "/api/v1/orders/"+o.Code+"/parts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestParts_CreateForUnknownOrderIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), "POST", "/api/v1/orders/ZZZZZZ/parts", []models.PartDraft{
		{Name: "gear", Quantity: 1},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestParts_DeleteClearsAlerts(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Router()
	ctx := context.Background()

	o := seedOrder(t, st, "Delta")
	parts, err := st.CreateParts(ctx, o.Code, []models.PartDraft{{Name: "shaft", Quantity: 2}})
	require.NoError(t, err)
	require.NoError(t, st.CreateAlert(ctx, &models.Alert{OrderCode: o.Code, PartName: "shaft", Reason: "overdue"}))

	rec := doJSON(t, h, "DELETE", "/api/v1/parts/"+parts[0].ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	alerts, err := st.ListAlerts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestAnalyze_CreatesAlertsForOverdueParts(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Router()
	ctx := context.Background()

	o := &models.Order{ClientName: "Epsilon", OrderDate: "2026-01-01", DeliveryDate: "2026-02-01"}
	require.NoError(t, st.CreateOrder(ctx, o))
	_, err := st.CreateParts(ctx, o.Code, []models.PartDraft{{Name: "rail", Quantity: 10}})
	require.NoError(t, err)

	rec := doJSON(t, h, "POST", "/api/v1/analyze", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Alerts []*models.Alert `json:"alerts"`
		Count  int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, o.Code, resp.Alerts[0].OrderCode)

	rec = doJSON(t, h, "GET", "/api/v1/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhook_FiresOnOrderCreation(t *testing.T) {
	var hits atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Event string        `json:"event"`
			Order *models.Order `json:"order"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "order.created", payload.Event)
		hits.Add(1)
	}))
	defer hook.Close()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "hook.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	orch := dialog.New(st, session.NewMemoryStore(), echoExtractor{}, dialog.Config{})
	srv := NewServer(st, orch, NewNotifier(hook.URL))

	rec := doJSON(t, srv.Router(), "POST", "/api/v1/orders", models.Order{
		ClientName:   "Zeta",
		DeliveryDate: "2026-12-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Eventually(t, func() bool { return hits.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebhook_FiresOnPartsCreation(t *testing.T) {
	events := make(chan string, 4)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Event string `json:"event"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		events <- payload.Event
	}))
	defer hook.Close()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "hook.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	orch := dialog.New(st, session.NewMemoryStore(), echoExtractor{}, dialog.Config{})
	srv := NewServer(st, orch, NewNotifier(hook.URL))

	rec := doJSON(t, srv.Router(), "POST", "/api/v1/orders", models.Order{
		ClientName:   "Zeta",
		DeliveryDate: "2026-12-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, srv.Router(), "POST", "/api/v1/orders/"+created.Code+"/parts", []models.PartDraft{
		{Name: "Flange", Quantity: 5},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			got[ev] = true
		case <-time.After(2 * time.Second):
			t.Fatal("webhook events not delivered")
		}
	}
	assert.True(t, got["order.created"])
	assert.True(t, got["parts.created"])
}

func TestCORS_PreflightIsHandled(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest("OPTIONS", "/api/v1/orders", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
