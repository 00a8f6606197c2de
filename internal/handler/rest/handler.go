package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/client-ledger/internal/apperrors"
	"github.com/sheikh-saqib/client-ledger/internal/ledger"
	"github.com/sheikh-saqib/client-ledger/internal/metrics"
	"github.com/sheikh-saqib/client-ledger/internal/models"
	"github.com/sheikh-saqib/client-ledger/internal/statement"
	"github.com/sheikh-saqib/client-ledger/internal/writer"
)

type Handler struct {
	ledger  *ledger.Ledger
	builder *statement.Builder
	csv     *writer.CSVWriter
	metrics *metrics.Metrics // optional
	logger  *zap.Logger
}

func NewHandler(l *ledger.Ledger, b *statement.Builder, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		ledger:  l,
		builder: b,
		csv:     &writer.CSVWriter{IncludeMeta: true},
		metrics: m,
		logger:  logger,
	}
}

// Routes returns the router serving the ledger API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if h.metrics != nil {
		r.Use(h.instrument)
	}
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}
	r.Post("/deposits", h.operation(models.Deposit))
	r.Post("/withdrawals", h.operation(models.Withdrawal))
	r.Get("/balance", h.GetBalance)
	r.Get("/clients", h.ListClients)
	r.Get("/statement", h.GetStatement)

	return r
}

func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		h.metrics.RequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	})
}

type operationRequest struct {
	Client      string          `json:"client"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type balanceResponse struct {
	Client  string          `json:"client"`
	Balance decimal.Decimal `json:"balance"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) operation(kind models.OperationKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req operationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
			return
		}

		op, err := h.ledger.ApplyOperation(r.Context(), req.Client, req.Amount, req.Description, kind)
		if err != nil {
			h.writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, balanceResponse{Client: op.ClientName, Balance: op.Balance})
	}
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	client := r.URL.Query().Get("client")

	balance, err := h.ledger.GetBalance(r.Context(), client)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Client: client, Balance: balance})
}

func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.ledger.GetClients(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]balanceResponse, 0, len(clients))
	for _, c := range clients {
		resp = append(resp, balanceResponse{Client: c.Name, Balance: c.Balance})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	since, err := parseTime(q.Get("since"), false)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid since: "+err.Error())
		return
	}
	till, err := parseTime(q.Get("till"), true)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid till: "+err.Error())
		return
	}

	stmt, err := h.builder.Build(r.Context(), q.Get("client"), since, till)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if strings.EqualFold(q.Get("format"), "csv") {
		w.Header().Set("Content-Type", "text/csv")
		if err := h.csv.Write(w, stmt); err != nil {
			h.logger.Error("failed to write csv statement", zap.Error(err))
		}
		return
	}
	writeJSON(w, http.StatusOK, stmt)
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTime reads a timestamp in UTC. A bare date used as an upper bound covers the whole day.
func parseTime(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("value is required")
	}
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err != nil {
			continue
		}
		if layout == "2006-01-02" && endOfDay {
			t = t.Add(24*time.Hour - time.Second)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unsupported format %q, use YYYY-MM-DD HH:MM:SS", s)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case apperrors.IsValidation(err):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperrors.ErrNoData):
		writeErrorMessage(w, http.StatusNotFound, "data not found")
	case errors.Is(err, apperrors.ErrClientNotFound):
		writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apperrors.ErrInsufficientFunds):
		writeErrorMessage(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeErrorMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
