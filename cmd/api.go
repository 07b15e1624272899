package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/arbitrage-cli/internal/model"
	"github.com/sells-group/arbitrage-cli/internal/monitoring"
	"github.com/sells-group/arbitrage-cli/internal/queue"
	"github.com/sells-group/arbitrage-cli/internal/resilience"
	"github.com/sells-group/arbitrage-cli/internal/route"
	"github.com/sells-group/arbitrage-cli/internal/store"
)

const (
	maxBatchURLs     = 100
	defaultPageLimit = 100
	maxPageLimit     = 1000
	maxBodyBytes     = 1 << 20
)

// routePlanner builds pickup plans.
type routePlanner interface {
	Plan(ctx context.Context, req route.Request) (*route.Plan, error)
}

// apiServer serves the intake and operator HTTP API.
type apiServer struct {
	store       store.Store
	dispatcher  queue.Dispatcher
	collector   *monitoring.Collector
	planner     routePlanner // nil when Mapbox is not configured
	maxAttempts int
}

// buildRouter mounts every route with logging, recovery and CORS.
func buildRouter(s *apiServer, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/discovery", s.handleDiscover)
		r.Post("/discovery/batch", s.handleDiscoverBatch)
		r.Get("/items", s.handleListItems)
		r.Get("/items/{id}", s.handleGetItem)
		r.Post("/items/{id}/reprocess", s.handleReprocess)
		r.Post("/logistics/route", s.handleRoute)
		r.Get("/status", s.handleStatus)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type discoveryRequest struct {
	URL string `json:"url"`
}

func (s *apiServer) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req discoveryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateListingURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	it, err := s.submit(r.Context(), strings.TrimSpace(req.URL))
	if err != nil {
		if it != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error":   "item created but could not be queued",
				"item_id": it.ID,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "could not create item")
		return
	}
	writeJSON(w, http.StatusAccepted, it)
}

type batchRequest struct {
	URLs []string `json:"urls"`
}

type batchResult struct {
	URL     string `json:"url"`
	ItemID  string `json:"item_id,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s *apiServer) handleDiscoverBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls is required")
		return
	}
	if len(req.URLs) > maxBatchURLs {
		writeError(w, http.StatusBadRequest, "too many urls (max "+strconv.Itoa(maxBatchURLs)+")")
		return
	}

	results := make([]batchResult, 0, len(req.URLs))
	for _, raw := range req.URLs {
		res := batchResult{URL: raw}
		if err := validateListingURL(raw); err != nil {
			res.Error = err.Error()
			results = append(results, res)
			continue
		}
		it, err := s.submit(r.Context(), strings.TrimSpace(raw))
		if it != nil {
			res.ItemID = it.ID
		}
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Success = true
		}
		results = append(results, res)
	}
	writeJSON(w, http.StatusOK, results)
}

// submit creates a pending item and enqueues it. When the enqueue fails the
// item is dead-lettered so a later replay picks it up, and both the item and
// the error are returned.
func (s *apiServer) submit(ctx context.Context, sourceURL string) (*model.Item, error) {
	it, err := s.store.CreateItem(ctx, sourceURL)
	if err != nil {
		zap.L().Error("api: create item failed", zap.String("url", sourceURL), zap.Error(err))
		return nil, err
	}

	if err := s.dispatcher.Enqueue(ctx, it.ID); err != nil {
		zap.L().Error("api: enqueue failed", zap.String("item_id", it.ID), zap.Error(err))
		entry := resilience.NewDLQEntry(it.ID, err, s.maxAttempts, time.Now().UTC())
		if dlqErr := s.store.EnqueueDLQ(context.WithoutCancel(ctx), entry); dlqErr != nil {
			zap.L().Error("api: dead-letter failed", zap.String("item_id", it.ID), zap.Error(dlqErr))
		}
		return it, err
	}

	zap.L().Info("item submitted", zap.String("item_id", it.ID), zap.String("url", sourceURL))
	return it, nil
}

func (s *apiServer) handleListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ItemFilter{Limit: defaultPageLimit}

	if v := q.Get("status"); v != "" {
		status := model.ItemStatus(v)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(v))
			return
		}
		filter.Status = status
	}
	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "skip must be a non-negative integer")
			return
		}
		filter.Offset = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxPageLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxPageLimit))
			return
		}
		filter.Limit = n
	}

	items, err := s.store.ListItems(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list items failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list items")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *apiServer) handleGetItem(w http.ResponseWriter, r *http.Request) {
	it, ok := s.loadItem(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (s *apiServer) handleReprocess(w http.ResponseWriter, r *http.Request) {
	it, ok := s.loadItem(w, r)
	if !ok {
		return
	}
	if err := s.dispatcher.Enqueue(r.Context(), it.ID); err != nil {
		zap.L().Error("api: reprocess enqueue failed", zap.String("item_id", it.ID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "could not queue item")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "item_id": it.ID})
}

func (s *apiServer) loadItem(w http.ResponseWriter, r *http.Request) (*model.Item, bool) {
	id := chi.URLParam(r, "id")
	it, err := s.store.GetItem(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "item not found")
		return nil, false
	}
	if err != nil {
		zap.L().Error("api: get item failed", zap.String("item_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load item")
		return nil, false
	}
	return it, true
}

func (s *apiServer) handleRoute(w http.ResponseWriter, r *http.Request) {
	if s.planner == nil {
		writeError(w, http.StatusServiceUnavailable, "route planning is not configured")
		return
	}

	var req route.Request
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	plan, err := s.planner.Plan(r.Context(), req)
	if errors.Is(err, route.ErrNotEnoughStops) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		zap.L().Error("api: plan route failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "route optimization failed")
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.collector.Collect(r.Context())
	if err != nil {
		zap.L().Error("api: collect status failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not collect status")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func validateListingURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return eris.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return eris.New("url must be an absolute http(s) URL")
	}
	return nil
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
