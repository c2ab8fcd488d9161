package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/defiedge/rangevault/internal/engine"
	"github.com/defiedge/rangevault/internal/logger"
	"github.com/defiedge/rangevault/internal/state"
	"github.com/defiedge/rangevault/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes the vault's live state and persisted history over HTTP,
// plus the operator surface for rebalance, adjust, hold and fee claims. The
// engine owns all authorization; handlers only translate requests.
type WebServer struct {
	router  *mux.Router
	port    string
	vault   *engine.Vault
	started time.Time
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, vault *engine.Vault) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		vault:   vault,
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
	api.HandleFunc("/status", ws.handleGetStatus).Methods("GET")
	api.HandleFunc("/ranges", ws.handleGetRanges).Methods("GET")
	api.HandleFunc("/rebalances", ws.handleGetRebalances).Methods("GET")
	api.HandleFunc("/fees", ws.handleGetFeeClaims).Methods("GET")
	api.HandleFunc("/config-events", ws.handleGetConfigEvents).Methods("GET")

	// Operator surface. Nothing runs on a timer; every capital-moving call
	// is an explicit request here and the engine enforces authorization.
	api.HandleFunc("/rebalance", ws.handleRebalance).Methods("POST")
	api.HandleFunc("/adjust", ws.handleAdjust).Methods("POST")
	api.HandleFunc("/hold", ws.handleHold).Methods("POST")
	api.HandleFunc("/claim-fee", ws.handleClaimFee).Methods("POST")

	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	corsHandler := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      corsHandler.Handler(ws.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth reports process and database health.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbHealthy := true
	if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !dbHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, map[string]interface{}{
		"status":         status,
		"database":       dbHealthy,
		"uptime_seconds": int64(time.Since(ws.started).Seconds()),
		"timestamp":      time.Now().UTC(),
	})
}

// handleGetStatus returns the vault's live in-memory state.
func (ws *WebServer) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	vaultState := ws.vault.State()
	cfg := ws.vault.ManagerConfig()

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"vault_id":                   ws.vault.ID(),
		"idle":                       vaultState.Idle,
		"total_shares":               vaultState.TotalShares.String(),
		"unused_amount_0":            vaultState.UnusedAmount0.String(),
		"unused_amount_1":            vaultState.UnusedAmount1.String(),
		"active_ranges":              len(vaultState.ActiveRanges),
		"acc_management_fee_shares":  vaultState.AccManagementFeeShares.String(),
		"acc_performance_fee_shares": vaultState.AccPerformanceFeeShares.String(),
		"acc_protocol_fee_shares":    vaultState.AccProtocolFeeShares.String(),
		"operator":                   cfg.Operator,
		"fee_recipient":              cfg.FeeRecipient,
		"management_fee_rate":        cfg.ManagementFeeRate,
		"performance_fee_rate":       cfg.PerformanceFeeRate,
		"privacy_mode":               cfg.PrivacyMode,
	})
}

// handleGetRanges returns the active range set.
func (ws *WebServer) handleGetRanges(w http.ResponseWriter, r *http.Request) {
	vaultState := ws.vault.State()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"ranges": vaultState.ActiveRanges,
		"count":  len(vaultState.ActiveRanges),
	})
}

// handleGetRebalances returns persisted rebalance snapshots, newest first.
func (ws *WebServer) handleGetRebalances(w http.ResponseWriter, r *http.Request) {
	limit := ws.limitParam(r, 50)
	snapshots, err := state.ListRebalanceSnapshots(ws.vault.ID(), limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to retrieve rebalance snapshots")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve rebalance snapshots")
		return
	}
	if snapshots == nil {
		snapshots = []types.RebalanceSnapshot{}
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"rebalances": snapshots,
		"count":      len(snapshots),
	})
}

// handleGetFeeClaims returns persisted fee-claim settlements, newest first.
func (ws *WebServer) handleGetFeeClaims(w http.ResponseWriter, r *http.Request) {
	limit := ws.limitParam(r, 50)
	claims, err := state.ListFeeClaims(ws.vault.ID(), limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to retrieve fee claims")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve fee claims")
		return
	}
	if claims == nil {
		claims = []types.FeeClaim{}
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"fee_claims": claims,
		"count":      len(claims),
	})
}

// handleGetConfigEvents returns persisted manager-config changes, newest first.
func (ws *WebServer) handleGetConfigEvents(w http.ResponseWriter, r *http.Request) {
	limit := ws.limitParam(r, 50)
	events, err := state.ListConfigEvents(ws.vault.ID(), limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to retrieve config events")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve config events")
		return
	}
	if events == nil {
		events = []types.ConfigEvent{}
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"config_events": events,
		"count":         len(events),
	})
}

// rebalanceRequest is the operator payload for a full rebalance.
type rebalanceRequest struct {
	Caller string              `json:"caller"`
	Ranges []types.RangeBounds `json:"ranges"`
	Swap   *types.SwapRequest  `json:"swap,omitempty"`
}

// handleRebalance tears down and redeploys the vault's ranges.
func (ws *WebServer) handleRebalance(w http.ResponseWriter, r *http.Request) {
	var req rebalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := ws.vault.Rebalance(req.Caller, req.Ranges, req.Swap); err != nil {
		ws.writeEngineError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"result": "rebalanced",
		"ranges": len(ws.vault.State().ActiveRanges),
	})
}

type adjustRequest struct {
	Caller  string              `json:"caller"`
	Entries []types.AdjustEntry `json:"entries"`
}

// handleAdjust applies partial range changes.
func (ws *WebServer) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := ws.vault.Adjust(req.Caller, req.Entries); err != nil {
		ws.writeEngineError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"result": "adjusted",
		"ranges": len(ws.vault.State().ActiveRanges),
	})
}

type callerRequest struct {
	Caller string `json:"caller"`
}

// handleHold parks the vault idle.
func (ws *WebServer) handleHold(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := ws.vault.Hold(req.Caller); err != nil {
		ws.writeEngineError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"result": "holding"})
}

// handleClaimFee settles the accrued fee share counters.
func (ws *WebServer) handleClaimFee(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := ws.vault.ClaimFee(req.Caller); err != nil {
		ws.writeEngineError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"result": "claimed"})
}

// writeEngineError maps engine sentinel errors onto HTTP status codes.
func (ws *WebServer) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, engine.ErrNotOperator), errors.Is(err, engine.ErrUnauthorized), errors.Is(err, engine.ErrDenylisted):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrReentrant):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrDeviationExceeded):
		status = http.StatusConflict
	}
	webLogger.Warn().Err(err).Int("status", status).Msg("Operator request rejected")
	ws.writeErrorResponse(w, status, err.Error())
}

func (ws *WebServer) limitParam(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > 500 {
		return fallback
	}
	return limit
}

func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	ws.writeJSONResponse(w, statusCode, map[string]string{"error": message})
}

// loggingMiddleware logs each request at debug level.
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
