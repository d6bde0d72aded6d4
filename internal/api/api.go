package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mbrandao/opchat/internal/alerts"
	"github.com/mbrandao/opchat/internal/dialog"
	"github.com/mbrandao/opchat/internal/models"
	"github.com/mbrandao/opchat/internal/store"
)

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	orch     *dialog.Orchestrator
	scanner  *alerts.Scanner
	notifier *Notifier
}

// NewServer creates a new API server. The notifier may be nil when no
// webhook URL is configured.
func NewServer(s store.Store, orch *dialog.Orchestrator, notifier *Notifier) *Server {
	return &Server{
		store:    s,
		orch:     orch,
		scanner:  alerts.NewScanner(s),
		notifier: notifier,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/chat", s.chat)

	mux.HandleFunc("GET /api/v1/orders", s.listOrders)
	mux.HandleFunc("POST /api/v1/orders", s.createOrder)
	mux.HandleFunc("GET /api/v1/orders/{code}", s.getOrder)
	mux.HandleFunc("PUT /api/v1/orders/{code}", s.updateOrder)
	mux.HandleFunc("DELETE /api/v1/orders/{code}", s.deleteOrder)

	mux.HandleFunc("GET /api/v1/orders/{code}/parts", s.listOrderParts)
	mux.HandleFunc("POST /api/v1/orders/{code}/parts", s.createOrderParts)

	mux.HandleFunc("GET /api/v1/parts", s.searchParts)
	mux.HandleFunc("GET /api/v1/parts/{id}", s.getPart)
	mux.HandleFunc("PUT /api/v1/parts/{id}", s.updatePart)
	mux.HandleFunc("DELETE /api/v1/parts/{id}", s.deletePart)

	mux.HandleFunc("GET /api/v1/alerts", s.listAlerts)
	mux.HandleFunc("POST /api/v1/analyze", s.analyze)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Chat ---

// ChatRequest is the JSON body for POST /api/v1/chat.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := s.orch.HandleMessage(r.Context(), req.SessionID, req.Message)
	if err != nil && reply == nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// A session-save failure still produced a reply; return it.
	writeJSON(w, http.StatusOK, reply)
}

// --- Orders ---

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	orders, err := s.store.SearchOrders(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var o models.Order
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if o.ClientName == "" {
		writeError(w, http.StatusBadRequest, "client_name is required")
		return
	}
	if err := s.store.CreateOrder(r.Context(), &o); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.notifier != nil {
		s.notifier.OrderCreated(&o)
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	order, err := s.store.GetOrder(r.Context(), code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) updateOrder(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	order, err := s.store.UpdateOrder(r.Context(), code, patch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// deleteOrder removes the order and its dependents: alerts first, then
// parts, then the order row itself.
func (s *Server) deleteOrder(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	ctx := r.Context()

	if _, err := s.store.GetOrder(ctx, code); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if _, err := s.store.DeleteAlertsByOrder(ctx, code); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := s.store.DeletePartsByOrder(ctx, code); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.store.DeleteOrder(ctx, code); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Parts ---

func (s *Server) listOrderParts(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	parts, err := s.store.GetOrderParts(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if parts == nil {
		parts = []*models.Part{}
	}
	writeJSON(w, http.StatusOK, parts)
}

func (s *Server) createOrderParts(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	var drafts []models.PartDraft
	if err := json.NewDecoder(r.Body).Decode(&drafts); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(drafts) == 0 {
		writeError(w, http.StatusBadRequest, "at least one part is required")
		return
	}
	for _, d := range drafts {
		if d.Name == "" {
			writeError(w, http.StatusBadRequest, "part name is required")
			return
		}
	}

	parts, err := s.store.CreateParts(r.Context(), code, drafts)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.notifier != nil {
		s.notifier.PartsCreated(code, parts)
	}
	writeJSON(w, http.StatusCreated, parts)
}

func (s *Server) searchParts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	parts, err := s.store.SearchParts(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if parts == nil {
		parts = []*models.Part{}
	}
	writeJSON(w, http.StatusOK, parts)
}

func (s *Server) getPart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	part, err := s.store.GetPart(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, part)
}

func (s *Server) updatePart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	part, err := s.store.UpdatePart(r.Context(), id, patch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, part)
}

// deletePart removes the part after clearing its alerts.
func (s *Server) deletePart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()

	part, err := s.store.GetPart(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if _, err := s.store.DeleteAlertsByPart(ctx, part.OrderCode, part.Name); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.store.DeletePart(ctx, id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Alerts ---

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	alertList, err := s.store.ListAlerts(r.Context(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if alertList == nil {
		alertList = []*models.Alert{}
	}
	writeJSON(w, http.StatusOK, alertList)
}

// analyze runs the production risk scan and returns the alerts it
// created.
func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	created, err := s.scanner.Scan(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if created == nil {
		created = []*models.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": created,
		"count":  len(created),
	})
}
