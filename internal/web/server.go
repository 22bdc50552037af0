package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/attestation"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/challenge"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/consensus"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/events"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/logger"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/positions"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/state"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/tasks"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes the task, challenge and position APIs plus health and
// metrics endpoints.
type WebServer struct {
	router     *mux.Router
	port       string
	engine     *consensus.Engine
	lifecycle  *tasks.Lifecycle
	verifier   *challenge.Verifier
	tracker    *positions.Tracker
	attestor   attestation.Verifier
	emitter    *events.Emitter
	quorumBps  int64
	configName string
}

// NewWebServer wires the HTTP surface to the core components.
func NewWebServer(port string, engine *consensus.Engine, lifecycle *tasks.Lifecycle, verifier *challenge.Verifier, tracker *positions.Tracker, attestor attestation.Verifier, emitter *events.Emitter, quorumBps int64, configName string) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:     mux.NewRouter(),
		port:       port,
		engine:     engine,
		lifecycle:  lifecycle,
		verifier:   verifier,
		tracker:    tracker,
		attestor:   attestor,
		emitter:    emitter,
		quorumBps:  quorumBps,
		configName: configName,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// Prometheus metrics from the emitter's registry
	if reg := ws.emitter.Registry(); reg != nil {
		ws.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")
	}

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/tasks", ws.handleCreateTask).Methods("POST")
	api.HandleFunc("/tasks/{id}", ws.handleGetTask).Methods("GET")
	api.HandleFunc("/tasks/{id}/submissions", ws.handleSubmit).Methods("POST")
	api.HandleFunc("/tasks/{id}/challenges", ws.handleRaiseChallenge).Methods("POST")
	api.HandleFunc("/assets/{asset}/tasks", ws.handleGetAssetTasks).Methods("GET")
	api.HandleFunc("/assets/{asset}/adjustment", ws.handleGetRequiredAdjustment).Methods("GET")
	api.HandleFunc("/positions/{id}/health", ws.handleGetPositionHealth).Methods("GET")
	api.HandleFunc("/positions/{id}/adjustments", ws.handleGetPositionAdjustments).Methods("GET")
	api.HandleFunc("/rounds", ws.handleGetRounds).Methods("GET")
	api.HandleFunc("/parameters", ws.handleGetParameters).Methods("GET")
	api.HandleFunc("/operators", ws.handleGetOperators).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
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

// Handler exposes the configured router. Tests serve requests through it
// without binding a port.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbHealthy := true
	if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
	}

	overallStatus := "OK"
	if !dbHealthy {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "yieldsync-consensus-service",
			"version": "1.0.0",
		},
		"database_healthy": dbHealthy,
	}

	statusCode := http.StatusOK
	if !dbHealthy {
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, response)
}

type createTaskRequest struct {
	Asset string `json:"asset"`
}

// handleCreateTask opens a new monitoring task for an asset
func (ws *WebServer) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Asset == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid task request body")
		return
	}

	task := ws.lifecycle.CreateTask(types.AssetID(req.Asset), ws.quorumBps)
	if err := state.SaveTask(task, nil); err != nil {
		webLogger.Error().Err(err).Int64("taskId", int64(task.ID)).Msg("Failed to persist new task")
	}

	ws.writeJSONResponse(w, http.StatusCreated, task)
}

// handleGetTask returns a task with its response and challenge, if any
func (ws *WebServer) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := ws.taskIDFromRequest(w, r)
	if !ok {
		return
	}

	task, err := ws.lifecycle.Get(taskID)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Task not found")
		return
	}
	response, _ := ws.lifecycle.Response(taskID)
	chal, _ := ws.lifecycle.GetChallenge(taskID)

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"task":      task,
		"response":  response,
		"challenge": chal,
	})
}

type submissionRequest struct {
	Operator     string    `json:"operator"`
	YieldRateBps int64     `json:"yield_rate_bps"`
	Timestamp    time.Time `json:"timestamp"`
	Evidence     []byte    `json:"evidence"`
	Pubkey       []byte    `json:"pubkey"`
	Signature    []byte    `json:"signature"`
}

// handleSubmit records one operator's yield report against a task's asset.
// The signature must attest to the evidence bytes.
func (ws *WebServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	taskID, ok := ws.taskIDFromRequest(w, r)
	if !ok {
		return
	}
	task, err := ws.lifecycle.Get(taskID)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Task not found")
		return
	}
	if task.State != types.TaskStateResponseOpen || ws.engine.Now().After(task.ResponseWindowEnd) {
		ws.writeErrorResponse(w, http.StatusGone, "Task is not accepting submissions")
		return
	}

	var req submissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid submission body")
		return
	}

	if !ws.attestor.Verify(req.Pubkey, req.Evidence, req.Signature) {
		ws.emitter.SubmissionRecorded(task.Asset, req.Operator, req.YieldRateBps, false)
		ws.writeErrorResponse(w, http.StatusUnauthorized, "Attestation signature invalid")
		return
	}

	err = ws.engine.Submit(r.Context(), task.Asset, req.Operator, req.YieldRateBps, req.Evidence, req.Timestamp)
	ws.emitter.SubmissionRecorded(task.Asset, req.Operator, req.YieldRateBps, err == nil)
	if err != nil {
		ws.writeErrorResponse(w, submissionStatusCode(err), err.Error())
		return
	}

	ws.writeJSONResponse(w, http.StatusAccepted, map[string]interface{}{
		"task_id":  taskID,
		"asset":    task.Asset,
		"operator": req.Operator,
		"accepted": true,
	})
}

// submissionStatusCode maps submission rejections onto HTTP statuses.
func submissionStatusCode(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidRange), errors.Is(err, types.ErrStaleEvidence):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrOperatorNotRegistered):
		return http.StatusForbidden
	case errors.Is(err, types.ErrDuplicateSubmission):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type challengeRequest struct {
	Challenger       string `json:"challenger"`
	EvidenceValueBps int64  `json:"evidence_value_bps"`
	Bond             string `json:"bond"`
}

// handleRaiseChallenge disputes a task's recorded consensus value
func (ws *WebServer) handleRaiseChallenge(w http.ResponseWriter, r *http.Request) {
	taskID, ok := ws.taskIDFromRequest(w, r)
	if !ok {
		return
	}

	var req challengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Challenger == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid challenge body")
		return
	}
	bond, bondOK := sdkmath.NewIntFromString(req.Bond)
	if !bondOK || bond.IsNegative() {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid bond amount")
		return
	}

	chal, err := ws.verifier.RaiseChallenge(r.Context(), taskID, req.Challenger, req.EvidenceValueBps, bond)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrAlreadyChallenged):
			ws.writeErrorResponse(w, http.StatusConflict, err.Error())
		case errors.Is(err, types.ErrWindowExpired):
			ws.writeErrorResponse(w, http.StatusGone, err.Error())
		case errors.Is(err, types.ErrTaskNotFound):
			ws.writeErrorResponse(w, http.StatusNotFound, err.Error())
		default:
			webLogger.Error().Err(err).Int64("taskId", int64(taskID)).Msg("Failed to raise challenge")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to raise challenge")
		}
		return
	}
	if err := state.SaveChallenge(*chal, nil); err != nil {
		webLogger.Error().Err(err).Int64("taskId", int64(taskID)).Msg("Failed to persist challenge")
	}

	ws.writeJSONResponse(w, http.StatusCreated, chal)
}

// handleGetAssetTasks returns recent tasks for an asset
func (ws *WebServer) handleGetAssetTasks(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	asset := types.AssetID(vars["asset"])

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	recent, err := state.GetRecentTasks(asset, limit)
	if err != nil {
		webLogger.Error().Err(err).Str("asset", string(asset)).Msg("Failed to get recent tasks")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve tasks")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"asset": asset,
		"tasks": recent,
		"count": len(recent),
	})
}

// handleGetRequiredAdjustment returns the latest finalized yield for an asset
// and the drift applied to its positions since a point in time.
func (ws *WebServer) handleGetRequiredAdjustment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	asset := types.AssetID(vars["asset"])

	since := time.Now().Add(-24 * time.Hour)
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		parsed, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid 'since' timestamp, want RFC3339")
			return
		}
		since = parsed
	}

	latestYield, err := state.GetLatestFinalizedYield(asset)
	if err != nil {
		if errors.Is(err, types.ErrNoFinalizedYield) {
			ws.writeErrorResponse(w, http.StatusNotFound, "No finalized yield data for asset")
			return
		}
		webLogger.Error().Err(err).Str("asset", string(asset)).Msg("Failed to get latest finalized yield")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve yield data")
		return
	}

	appliedDrift, err := state.GetDriftSince(asset, since)
	if err != nil {
		webLogger.Error().Err(err).Str("asset", string(asset)).Msg("Failed to get applied drift")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve drift data")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"asset":                   asset,
		"latest_finalized_bps":    latestYield,
		"applied_drift_bps_since": appliedDrift,
		"since":                   since.UTC(),
	})
}

// handleGetPositionHealth returns the read-only health view of a position.
// Drift defaults to the latest finalized yield minus the position's
// accumulated yield; a drift_bps query overrides it.
func (ws *WebServer) handleGetPositionHealth(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid position ID")
		return
	}
	positionID := types.PositionID(id)

	position, err := ws.tracker.Get(positionID)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Position not found")
		return
	}

	var driftBps int64
	if driftStr := r.URL.Query().Get("drift_bps"); driftStr != "" {
		driftBps, err = strconv.ParseInt(driftStr, 10, 64)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid drift_bps")
			return
		}
	} else {
		latestYield, err := state.GetLatestFinalizedYield(position.LSTAsset)
		if err != nil && !errors.Is(err, types.ErrNoFinalizedYield) {
			webLogger.Error().Err(err).Int64("positionId", id).Msg("Failed to get latest finalized yield")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve yield data")
			return
		}
		if err == nil {
			driftBps = latestYield - position.AccumulatedYieldBps
		}
	}

	health, err := ws.tracker.Health(positionID, driftBps)
	if err != nil {
		webLogger.Error().Err(err).Int64("positionId", id).Msg("Failed to compute position health")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to compute position health")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, health)
}

// handleGetPositionAdjustments returns the adjustment history of a position
func (ws *WebServer) handleGetPositionAdjustments(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid position ID")
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	history, err := state.GetAdjustmentHistory(types.PositionID(id), limit)
	if err != nil {
		webLogger.Error().Err(err).Int64("positionId", id).Msg("Failed to get adjustment history")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve adjustment history")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"position_id": id,
		"adjustments": history,
		"count":       len(history),
	})
}

// handleGetRounds returns recent round snapshots
func (ws *WebServer) handleGetRounds(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	rounds, err := state.GetRecentRoundSnapshots(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent rounds")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve rounds")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"rounds": rounds,
		"count":  len(rounds),
		"limit":  limit,
	})
}

// handleGetParameters returns the active consensus and adjustment parameters
func (ws *WebServer) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	consensusParams, adjustmentParams, err := state.LoadActiveConsensusParameters(ws.configName)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get active parameters")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve parameters")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"consensus":  consensusParams,
		"adjustment": adjustmentParams,
		"timestamp":  time.Now().UTC(),
	})
}

// handleGetOperators returns persisted operator records
func (ws *WebServer) handleGetOperators(w http.ResponseWriter, r *http.Request) {
	records, err := state.GetOperatorRecords()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get operator records")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve operator records")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"operators": records,
		"count":     len(records),
	})
}

// taskIDFromRequest parses the {id} path variable
func (ws *WebServer) taskIDFromRequest(w http.ResponseWriter, r *http.Request) (types.TaskID, bool) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid task ID")
		return 0, false
	}
	return types.TaskID(id), true
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
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
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

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
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
