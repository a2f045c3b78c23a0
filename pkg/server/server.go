// Package server 提供控制和查询会话引擎的HTTP接口
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Kevin-Rudy/pingwatch/pkg/archive"
	"github.com/Kevin-Rudy/pingwatch/pkg/core"
	"github.com/Kevin-Rudy/pingwatch/pkg/export"
	"github.com/Kevin-Rudy/pingwatch/pkg/session"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Controller 服务端需要的会话引擎操作
type Controller interface {
	Start(p session.Params) error
	Stop()
	Clear()
	Snapshot() []core.Observation
	Statistics() core.Statistics
	State() session.State
	SessionID() string
	Params() session.Params
	Capacity() int
}

// ArchiveReader 归档查询
type ArchiveReader interface {
	Sessions() ([]archive.SessionSummary, error)
	Observations(sessionID string) ([]core.Observation, error)
}

// Config HTTP服务配置
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Dependencies 服务依赖的外部协作者，Metrics 和 Archive 可以为空
type Dependencies struct {
	Logger  *zap.Logger
	Engine  Controller
	Metrics http.Handler
	Archive ArchiveReader
	Now     func() time.Time
}

// Server 包装 http.Server
type Server struct {
	*http.Server
	deps Dependencies
}

// New 创建HTTP服务并注册路由
func New(cfg Config, deps Dependencies) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := &Server{deps: deps}
	s.Server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", s.statusHandler).Methods(http.MethodGet)
	api.HandleFunc("/statistics", s.statisticsHandler).Methods(http.MethodGet)
	api.HandleFunc("/observations", s.observationsHandler).Methods(http.MethodGet)
	api.HandleFunc("/export", s.exportHandler).Methods(http.MethodGet)
	api.HandleFunc("/session/start", s.startHandler).Methods(http.MethodPost)
	api.HandleFunc("/session/stop", s.stopHandler).Methods(http.MethodPost)
	api.HandleFunc("/session/clear", s.clearHandler).Methods(http.MethodPost)
	if s.deps.Archive != nil {
		api.HandleFunc("/sessions", s.sessionsHandler).Methods(http.MethodGet)
		api.HandleFunc("/sessions/{id}/observations", s.archivedObservationsHandler).Methods(http.MethodGet)
	}
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}

// Run 启动监听，ctx取消后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info("http server listening", zap.String("addr", s.Addr))
		errCh <- s.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type paramsJSON struct {
	Target      string `json:"target"`
	TimeoutMs   int    `json:"timeout_ms"`
	IntervalMs  int    `json:"interval_ms"`
	PayloadSize int    `json:"payload_size"`
}

func newParamsJSON(p session.Params) paramsJSON {
	return paramsJSON{
		Target:      p.Target,
		TimeoutMs:   int(p.Timeout / time.Millisecond),
		IntervalMs:  int(p.Interval / time.Millisecond),
		PayloadSize: p.PayloadSize,
	}
}

type statusResponse struct {
	State      string         `json:"state"`
	SessionID  string         `json:"session_id,omitempty"`
	Capacity   int            `json:"capacity"`
	Params     paramsJSON     `json:"params"`
	Statistics export.Summary `json:"statistics"`
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	e := s.deps.Engine
	s.writeJSON(w, http.StatusOK, statusResponse{
		State:      e.State().String(),
		SessionID:  e.SessionID(),
		Capacity:   e.Capacity(),
		Params:     newParamsJSON(e.Params()),
		Statistics: export.NewSummary(e.Statistics()),
	})
}

func (s *Server) statisticsHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, export.NewSummary(s.deps.Engine.Statistics()))
}

// observationsHandler 支持 ?since=序号 和 ?limit=条数（取最新的limit条）
func (s *Server) observationsHandler(w http.ResponseWriter, r *http.Request) {
	since, err := queryInt(r, "since")
	if err != nil {
		http.Error(w, "invalid since", http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return
	}

	obs := s.deps.Engine.Snapshot()
	start := 0
	for start < len(obs) && obs[start].Sequence <= since {
		start++
	}
	obs = obs[start:]
	if limit > 0 && len(obs) > limit {
		obs = obs[len(obs)-limit:]
	}
	s.writeJSON(w, http.StatusOK, toRecords(obs))
}

// exportHandler 下载账本，?format=json 时返回JSON，默认CSV
func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	obs := s.deps.Engine.Snapshot()
	if len(obs) == 0 {
		http.Error(w, export.ErrNothingToExport.Error(), http.StatusNotFound)
		return
	}

	name := export.DefaultFileName(s.deps.Now())
	var err error
	switch r.URL.Query().Get("format") {
	case "", "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		err = export.WriteCSV(w, obs)
	case "json":
		w.Header().Set("Content-Type", "application/json")
		err = export.WriteJSON(w, obs, core.ComputeStatistics(obs))
	default:
		http.Error(w, "unsupported format", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.deps.Logger.Warn("export failed", zap.Error(err))
	}
}

func (s *Server) startHandler(w http.ResponseWriter, r *http.Request) {
	// 未提供的字段沿用上一次的参数
	req := newParamsJSON(s.deps.Engine.Params())
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	p := session.ParamsFromMillis(req.Target, req.TimeoutMs, req.PayloadSize, req.IntervalMs)

	if err := s.deps.Engine.Start(p); err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidParams):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, session.ErrSessionActive):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			s.deps.Logger.Error("start session failed", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"session_id": s.deps.Engine.SessionID()})
}

func (s *Server) stopHandler(w http.ResponseWriter, _ *http.Request) {
	s.deps.Engine.Stop()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) clearHandler(w http.ResponseWriter, _ *http.Request) {
	s.deps.Engine.Clear()
	w.WriteHeader(http.StatusNoContent)
}

type sessionJSON struct {
	ID        string    `json:"id"`
	Target    string    `json:"target"`
	StartedAt time.Time `json:"started_at"`
	Count     int       `json:"count"`
	Received  int       `json:"received"`
}

func (s *Server) sessionsHandler(w http.ResponseWriter, _ *http.Request) {
	sessions, err := s.deps.Archive.Sessions()
	if err != nil {
		s.deps.Logger.Error("list sessions failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := make([]sessionJSON, 0, len(sessions))
	for _, ss := range sessions {
		out = append(out, sessionJSON(ss))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) archivedObservationsHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	obs, err := s.deps.Archive.Observations(id)
	if err != nil {
		if errors.Is(err, archive.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		s.deps.Logger.Error("load archived observations failed", zap.String("session", id), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, toRecords(obs))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.deps.Logger.Warn("encode response failed", zap.Error(err))
	}
}

func toRecords(obs []core.Observation) []export.Record {
	out := make([]export.Record, 0, len(obs))
	for _, o := range obs {
		out = append(out, export.NewRecord(o))
	}
	return out
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New("invalid " + key)
	}
	return v, nil
}
