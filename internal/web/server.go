package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/elys-network/stablerouter/internal/logger"
	"github.com/elys-network/stablerouter/internal/router"
	"github.com/elys-network/stablerouter/internal/state"
	"github.com/elys-network/stablerouter/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// VaultView is the read side of the router the API exposes.
type VaultView interface {
	Summary() (router.Summary, error)
	GetBatchValueUsd() (types.BatchValue, error)
	GetStrategies() ([]types.StrategyInfo, error)
	GetSupportedTokens() []types.SupportedToken
	GetCycle(id uint64) (types.Cycle, bool)
	ClosedCycles(limit int) []types.Cycle
	GetNotFulfilledCycleIDs() []uint64
	BatchOutCycle(id uint64) (types.BatchOutCycle, bool)
	CurrentBatchOutCycle() types.BatchOutCycle
}

// History is the audit trail. It is optional; without it the history routes answer 503.
type History interface {
	RecentCycles(limit int) ([]state.CycleRecord, error)
	BatchOutHistory(limit int) ([]state.BatchOutRecord, error)
	Stats() (*state.HistoryStats, error)
	Ping() error
}

// WebServer serves read-only JSON views of the vault
type WebServer struct {
	router  *mux.Router
	port    string
	vault   VaultView
	history History
	started time.Time
}

// NewWebServer creates a new web server instance. history may be nil.
func NewWebServer(port string, vault VaultView, history History) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		vault:   vault,
		history: history,
		started: time.Now(),
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/vault/summary", ws.handleGetVaultSummary).Methods("GET")
	api.HandleFunc("/batch", ws.handleGetBatch).Methods("GET")
	api.HandleFunc("/strategies", ws.handleGetStrategies).Methods("GET")
	api.HandleFunc("/tokens", ws.handleGetTokens).Methods("GET")
	api.HandleFunc("/cycles", ws.handleGetCycles).Methods("GET")
	api.HandleFunc("/cycles/{id:[0-9]+}", ws.handleGetCycle).Methods("GET")
	api.HandleFunc("/batch-out/pending", ws.handleGetPendingBatchOuts).Methods("GET")
	api.HandleFunc("/batch-out/{id:[0-9]+}", ws.handleGetBatchOut).Methods("GET")
	api.HandleFunc("/history/cycles", ws.handleGetHistoryCycles).Methods("GET")
	api.HandleFunc("/history/batch-out", ws.handleGetHistoryBatchOuts).Methods("GET")
	api.HandleFunc("/history/stats", ws.handleGetHistoryStats).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler exposes the route table, mainly for tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth reports process and audit database health
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbStatus := "disabled"
	healthy := true
	if ws.history != nil {
		dbStatus = "ok"
		if err := ws.history.Ping(); err != nil {
			dbStatus = "unreachable"
			healthy = false
		}
	}

	status, statusCode := "OK", http.StatusOK
	if !healthy {
		status, statusCode = "DEGRADED", http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "stablerouter",
			"version": "1.0.0",
		},
		"router_status": map[string]interface{}{
			"database":           dbStatus,
			"current_batch_out":  ws.vault.CurrentBatchOutCycle().ID,
			"pending_batch_outs": len(ws.vault.GetNotFulfilledCycleIDs()),
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

func (ws *WebServer) handleGetVaultSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := ws.vault.Summary()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to build vault summary")
		ws.writeRouterError(w, err, "Failed to retrieve vault summary")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, newSummaryResponse(summary))
}

func (ws *WebServer) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := ws.vault.GetBatchValueUsd()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to value batch")
		ws.writeRouterError(w, err, "Failed to retrieve batch value")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, newBatchResponse(batch))
}

func (ws *WebServer) handleGetStrategies(w http.ResponseWriter, r *http.Request) {
	strategies, err := ws.vault.GetStrategies()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to list strategies")
		ws.writeRouterError(w, err, "Failed to retrieve strategies")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, newStrategiesResponse(strategies))
}

func (ws *WebServer) handleGetTokens(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"tokens": ws.vault.GetSupportedTokens(),
	})
}

func (ws *WebServer) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	cycles := ws.vault.ClosedCycles(parseLimit(r))
	out := make([]cycleResponse, 0, len(cycles))
	for _, c := range cycles {
		out = append(out, newCycleResponse(c))
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"cycles": out, "count": len(out)})
}

func (ws *WebServer) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid cycle ID")
		return
	}
	cycle, ok := ws.vault.GetCycle(id)
	if !ok {
		ws.writeErrorResponse(w, http.StatusNotFound, "Cycle not found")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, newCycleResponse(cycle))
}

func (ws *WebServer) handleGetPendingBatchOuts(w http.ResponseWriter, r *http.Request) {
	var pending []batchOutResponse
	for _, id := range ws.vault.GetNotFulfilledCycleIDs() {
		if c, ok := ws.vault.BatchOutCycle(id); ok {
			pending = append(pending, newBatchOutResponse(c))
		}
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"current": newBatchOutResponse(ws.vault.CurrentBatchOutCycle()),
		"pending": pending,
	})
}

func (ws *WebServer) handleGetBatchOut(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid BatchOut cycle ID")
		return
	}
	cycle, ok := ws.vault.BatchOutCycle(id)
	if !ok {
		ws.writeErrorResponse(w, http.StatusNotFound, "BatchOut cycle not found")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, newBatchOutResponse(cycle))
}

func (ws *WebServer) handleGetHistoryCycles(w http.ResponseWriter, r *http.Request) {
	if !ws.requireHistory(w) {
		return
	}
	records, err := ws.history.RecentCycles(parseLimit(r))
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recorded cycles")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve cycle history")
		return
	}
	out := make([]recordedCycleResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, recordedCycleResponse{KeeperRun: rec.KeeperRun, cycleResponse: newCycleResponse(rec.Cycle)})
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"cycles": out, "count": len(out)})
}

func (ws *WebServer) handleGetHistoryBatchOuts(w http.ResponseWriter, r *http.Request) {
	if !ws.requireHistory(w) {
		return
	}
	records, err := ws.history.BatchOutHistory(parseLimit(r))
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recorded BatchOut cycles")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve BatchOut history")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"batch_outs": records, "count": len(records)})
}

func (ws *WebServer) handleGetHistoryStats(w http.ResponseWriter, r *http.Request) {
	if !ws.requireHistory(w) {
		return
	}
	stats, err := ws.history.Stats()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get history stats")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve history stats")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, newStatsResponse(stats))
}

func (ws *WebServer) requireHistory(w http.ResponseWriter) bool {
	if ws.history == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Audit database is not configured")
		return false
	}
	return true
}

func parseLimit(r *http.Request) int {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}
	return limit
}

// writeRouterError maps pricing failures to 503 since they clear once the oracle recovers.
func (ws *WebServer) writeRouterError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, types.ErrUnsupportedToken) {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, message+": price unavailable")
		return
	}
	ws.writeErrorResponse(w, http.StatusInternalServerError, message)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
