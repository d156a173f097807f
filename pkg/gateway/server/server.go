package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/voxhall/answer-gateway/pkg/gateway/backend"
	"github.com/voxhall/answer-gateway/pkg/gateway/cache"
	"github.com/voxhall/answer-gateway/pkg/gateway/config"
	"github.com/voxhall/answer-gateway/pkg/gateway/directory"
	"github.com/voxhall/answer-gateway/pkg/gateway/handlers"
	"github.com/voxhall/answer-gateway/pkg/gateway/lifecycle"
	"github.com/voxhall/answer-gateway/pkg/gateway/live/sessions"
	"github.com/voxhall/answer-gateway/pkg/gateway/mw"
	"github.com/voxhall/answer-gateway/pkg/gateway/orchestrator"
	"github.com/voxhall/answer-gateway/pkg/gateway/session"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	lifecycle     *lifecycle.Lifecycle
	voiceSessions *sessions.Tracker
	sessionStore  *session.Store
	controller    *orchestrator.Controller
}

func New(cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	sessionStore := session.NewStore(session.Options{
		MaxTurns:      cfg.SessionMaxTurns,
		TTL:           cfg.SessionTTL,
		SweepInterval: cfg.SessionSweepInterval,
		Logger:        logger,
	})

	controller := &orchestrator.Controller{
		Backend:   backend.NewClient(cfg.BackendBaseURL, cfg.BackendAPIKey, httpClient),
		Cache:     cache.New(cache.Options{TTL: cfg.CacheTTL, MaxEntries: cfg.CacheMaxEntries}),
		Sessions:  sessionStore,
		Directory: directory.Load(cfg.AgentDirectoryPath, logger),
		Notifier:  backend.NewNotifier(cfg.HandoffWebhookURL, httpClient, logger),
		Logger:    logger,
		Config: orchestrator.Config{
			CallTimeout: cfg.BackendCallTimeout,
			TopK:        cfg.RetrievalTopK,
			MaxInputLen: cfg.MaxInputLen,
		},
	}

	s := &Server{
		cfg:           cfg,
		logger:        logger,
		mux:           http.NewServeMux(),
		lifecycle:     &lifecycle.Lifecycle{},
		voiceSessions: sessions.NewTracker(),
		sessionStore:  sessionStore,
		controller:    controller,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle})

	s.mux.Handle("/v1/answers", handlers.AnswersHandler{
		Config:       s.cfg,
		Orchestrator: s.controller,
		Logger:       s.logger,
		Lifecycle:    s.lifecycle,
	})
	s.mux.Handle("/v1/answers:stream", handlers.AnswersHandler{
		Config:       s.cfg,
		Orchestrator: s.controller,
		Logger:       s.logger,
		Lifecycle:    s.lifecycle,
		Stream:       true,
	})

	var transcriber *backend.Transcriber
	if s.cfg.TranscribeWSURL != "" {
		transcriber = backend.NewTranscriber(s.cfg.TranscribeWSURL, s.cfg.BackendAPIKey)
	}
	s.mux.Handle("/v1/voice", handlers.VoiceHandler{
		Config:        s.cfg,
		Orchestrator:  s.controller,
		Transcriber:   transcriber,
		Logger:        s.logger,
		Lifecycle:     s.lifecycle,
		VoiceSessions: s.voiceSessions,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

func (s *Server) MarkStarted() { s.lifecycle.MarkStarted() }

func (s *Server) SetDraining() { s.lifecycle.SetDraining(true) }

func (s *Server) WarnVoiceSessionsDraining() {
	s.voiceSessions.WarnAll("draining", "gateway is shutting down")
}

func (s *Server) WaitVoiceSessions(ctx context.Context) bool {
	return s.voiceSessions.Wait(ctx)
}

func (s *Server) CancelVoiceSessions() {
	s.voiceSessions.CancelAll()
}

// Close releases background resources (the session sweeper).
func (s *Server) Close() {
	s.sessionStore.Close()
}
