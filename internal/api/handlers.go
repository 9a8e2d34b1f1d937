package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"logsentry/internal/broadcast"
	"logsentry/internal/cache"
	"logsentry/internal/model"
	"logsentry/internal/pipeline"
	"logsentry/internal/rules"
	"logsentry/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	defaultLogLimit   = 100
	maxLogLimit       = 500
	defaultAlertLimit = 50
	maxAlertLimit     = 200
	maxBodyBytes      = 1 << 20
)

type Handlers struct {
	rules        *rules.Store
	engine       *rules.Engine
	processor    *pipeline.Processor
	storage      *storage.Storage
	hub          *broadcast.Hub
	cache        *cache.StatsCache
	validate     *validator.Validate
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	logger       *logrus.Logger
}

type Deps struct {
	Rules        *rules.Store
	Engine       *rules.Engine
	Processor    *pipeline.Processor
	Storage      *storage.Storage
	Hub          *broadcast.Hub
	Cache        *cache.StatsCache
	PingInterval time.Duration
}

func NewHandlers(d Deps, logger *logrus.Logger) *Handlers {
	return &Handlers{
		rules:        d.Rules,
		engine:       d.Engine,
		processor:    d.Processor,
		storage:      d.Storage,
		hub:          d.Hub,
		cache:        d.Cache,
		validate:     validator.New(),
		pingInterval: d.PingInterval,
		logger:       logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				logger.Debugf("WebSocket origin check: %s", r.Header.Get("Origin"))
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

type ingestRequest struct {
	Timestamp string `json:"timestamp"`
	SourceIP  string `json:"source_ip" validate:"required,max=64"`
	Message   string `json:"message" validate:"required"`
	LogType   string `json:"log_type" validate:"max=64"`
	UserAgent string `json:"user_agent" validate:"max=1024"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTimestamp falls back to the current time for missing or
// unparseable values.
func parseTimestamp(s string, now time.Time) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	return now.UTC()
}

func (h *Handlers) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.LogType == "" {
		req.LogType = "generic"
	}

	ev := h.processor.Ingest(r.Context(), model.LogEvent{
		Timestamp: parseTimestamp(req.Timestamp, time.Now()),
		SourceIP:  req.SourceIP,
		Message:   req.Message,
		LogType:   req.LogType,
		UserAgent: req.UserAgent,
	})

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "received",
		"log_id": ev.ID,
	})
}

func (h *Handlers) GetLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logs := h.storage.GetLogs(storage.LogFilter{
		SourceIP: q.Get("source_ip"),
		LogType:  q.Get("log_type"),
		Search:   q.Get("search"),
		Limit:    limitParam(q.Get("limit"), defaultLogLimit, maxLogLimit),
	})
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handlers) GetAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.AlertFilter{
		SourceIP: q.Get("source_ip"),
		Limit:    limitParam(q.Get("limit"), defaultAlertLimit, maxAlertLimit),
	}
	if sev := q.Get("severity"); sev != "" {
		filter.Severity = model.ParseSeverity(sev)
	}
	if ack := q.Get("acknowledged"); ack != "" {
		v, err := strconv.ParseBool(ack)
		if err != nil {
			writeError(w, http.StatusBadRequest, "acknowledged must be true or false")
			return
		}
		filter.Acknowledged = &v
	}
	writeJSON(w, http.StatusOK, h.storage.GetAlerts(filter))
}

func (h *Handlers) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid alert id")
		return
	}

	if _, err := h.processor.Acknowledge(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrAlertNotFound) {
			writeError(w, http.StatusNotFound, "Alert not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Infof("Alert %d acknowledged", id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "acknowledged",
		"alert_id": id,
	})
}

// Rules handlers
func (h *Handlers) GetRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.rules.GetAll())
}

func (h *Handlers) GetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	rule, found := h.rules.Get(id)
	if !found {
		writeError(w, http.StatusNotFound, "Rule not found")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handlers) CreateRule(w http.ResponseWriter, r *http.Request) {
	var in model.RuleInput
	if !h.decode(w, r, &in) {
		return
	}
	rule, err := h.rules.Add(in)
	if err != nil {
		writeRuleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (h *Handlers) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	var patch model.RulePatch
	if !h.decode(w, r, &patch) {
		return
	}
	rule, err := h.rules.Update(id, patch)
	if err != nil {
		writeRuleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handlers) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	if !h.rules.Delete(id) {
		writeError(w, http.StatusNotFound, "Rule not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "deleted",
		"rule_id": id,
	})
}

func (h *Handlers) ReloadRules(w http.ResponseWriter, r *http.Request) {
	loaded, err := h.rules.Reload()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, rules.ErrNoRulesFile) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "reloaded",
		"rules":  len(loaded),
	})
}

func (h *Handlers) GetRulesStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Stats())
}

// GetStats serves dashboard statistics, cached in Redis when available.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()

	var stats storage.Stats
	hit, err := h.cache.Get(ctx, &stats)
	if err != nil {
		h.logger.Warnf("Stats cache read failed: %v", err)
	}
	if hit {
		writeJSON(w, http.StatusOK, stats)
		return
	}

	stats = h.storage.Stats(time.Now().UTC())
	if err := h.cache.Set(ctx, stats); err != nil {
		h.logger.Warnf("Stats cache write failed: %v", err)
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":                "healthy",
		"timestamp":             time.Now().UTC(),
		"redis_enabled":         h.cache.Enabled(),
		"websocket_connections": h.hub.GetStats().ActiveConnections,
	})
}

func (h *Handlers) WebSocketStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.GetStats())
}

// Stream upgrades the request and serves it until the peer disconnects.
func (h *Handlers) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}
	h.logger.Infof("WebSocket connection established from %s", r.RemoteAddr)
	h.hub.ServeWS(r.Context(), conn, h.pingInterval)
}

// Helper functions
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func ruleID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule id")
		return 0, false
	}
	return id, true
}

func limitParam(raw string, def, max int) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func writeRuleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rules.ErrRuleNotFound):
		writeError(w, http.StatusNotFound, "Rule not found")
	case errors.Is(err, rules.ErrDuplicateRule):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, rules.ErrInvalidRule):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
