package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"streambreakout/protocol"
)

const (
	defaultSimUser  = "TestUser"
	defaultSimLevel = 1
	adminTimeout    = 5 * time.Second
)

// adminAPI 管理与调试接口（模拟事件、重置、热更新自动事件）
type adminAPI struct {
	session *Session
	auto    *AutoEventer
}

type simulateRequest struct {
	UserName string `json:"userName"`
	Level    *int   `json:"level"`
}

type simulateResponse struct {
	Success bool                 `json:"success"`
	Event   protocol.StreamEvent `json:"event"`
}

type resetResponse struct {
	Success   bool              `json:"success"`
	GameState protocol.Counters `json:"gameState"`
}

type configResponse struct {
	Upgrades  []protocol.UpgradeStatus `json:"upgrades"`
	AutoEvent AutoEventConfig          `json:"autoEvent"`
}

type autoEventBody struct {
	Enabled       *bool `json:"enabled"`
	MinIntervalMs *int  `json:"minIntervalMs"`
	MaxIntervalMs *int  `json:"maxIntervalMs"`
}

type configRequest struct {
	AutoEvent *autoEventBody `json:"autoEvent"`
}

func (a *adminAPI) register(r *mux.Router) {
	r.HandleFunc("/api/status", a.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/simulate/{eventType}", a.handleSimulate).Methods(http.MethodPost)
	r.HandleFunc("/api/reset", a.handleReset).Methods(http.MethodPost)
	r.HandleFunc("/api/config", a.handleGetConfig).Methods(http.MethodGet)
	r.HandleFunc("/api/config", a.handlePostConfig).Methods(http.MethodPost)
}

// GET /api/status
func (a *adminAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	st, err := a.session.Status(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// POST /api/simulate/{eventType}  body 可选：{"userName":"x","level":3}
func (a *adminAPI) handleSimulate(w http.ResponseWriter, r *http.Request) {
	t, err := protocol.ParseEventType(mux.Vars(r)["eventType"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var body simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	name := body.UserName
	if name == "" {
		name = defaultSimUser
	}
	level := defaultSimLevel
	if body.Level != nil {
		level = *body.Level
	}

	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	ev, err := a.session.InjectEvent(ctx, protocol.StreamEvent{
		Type:     t,
		UserData: protocol.UserData{Name: name, Level: level, EventType: t},
	}, SourceAdmin)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrSessionClosed) || errors.Is(err, ErrCommandPanicked) || ctx.Err() != nil {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, simulateResponse{Success: true, Event: ev})
}

// POST /api/reset
func (a *adminAPI) handleReset(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	counters, err := a.session.Reset(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, resetResponse{Success: true, GameState: counters})
}

// GET /api/config 返回当前升级进度与自动事件设置
func (a *adminAPI) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	st, err := a.session.Status(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, configResponse{Upgrades: st.Upgrades, AutoEvent: a.auto.Config()})
}

// POST /api/config 以 JSON 载荷更新部分字段（热更新自动事件）
func (a *adminAPI) handlePostConfig(w http.ResponseWriter, r *http.Request) {
	var body configRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid json"))
		return
	}
	cur := a.auto.Config()
	if ae := body.AutoEvent; ae != nil {
		if ae.Enabled != nil {
			cur.Enabled = *ae.Enabled
		}
		if ae.MinIntervalMs != nil {
			cur.MinIntervalMs = *ae.MinIntervalMs
		}
		if ae.MaxIntervalMs != nil {
			cur.MaxIntervalMs = *ae.MaxIntervalMs
		}
	}
	if err := a.auto.Update(cur); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "autoEvent": cur})
}

func contextWithTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), adminTimeout)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, protocol.ErrorPayload{Error: err.Error()})
}
