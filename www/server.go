package www

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/icodeforyou/priceplan-go/config"
	"github.com/icodeforyou/priceplan-go/database"
	"github.com/icodeforyou/priceplan-go/pricing"
	"github.com/icodeforyou/priceplan-go/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	logger  *slog.Logger
	config  config.AppConfigApi
	hub     *Hub
	handler http.Handler
	version string
}

// NewServer wires the HTTP API. db is optional, the log endpoint is only
// served when readings and logs live in sqlite.
func NewServer(
	logger *slog.Logger,
	cnfg config.AppConfigApi,
	engine *pricing.Engine,
	store types.ReadingStore,
	db *database.Database,
	version string,
) *Server {
	logger = logger.With("module", "www")
	s := &Server{
		logger:  logger,
		config:  cnfg,
		hub:     NewHub(logger.With(slog.String("component", "hub"))),
		version: version,
	}

	timeout := cnfg.GetRequestTimeout()
	pusher := &recommendationPusher{
		logger:  logger.With(slog.String("component", "pusher")),
		engine:  engine,
		hub:     s.hub,
		timeout: timeout,
	}

	r := mux.NewRouter()
	r.Use(requestIDMW, s.observeMW)

	r.Handle("/readings/store", withTimeout(timeout, NewStoreReadingsHandler(
		logger.With(slog.String("handler", "store_readings")),
		store,
		pusher.push))).Methods(http.MethodPost)

	r.Handle("/readings/read/{smartMeterId}", withTimeout(timeout, NewReadReadingsHandler(
		logger.With(slog.String("handler", "read_readings")),
		store))).Methods(http.MethodGet)

	r.Handle("/price-plans", NewPricePlansHandler(engine.Plans())).Methods(http.MethodGet)

	r.Handle("/price-plans/compare-all/{smartMeterId}", withTimeout(timeout, NewCompareAllHandler(
		logger.With(slog.String("handler", "compare_all")),
		engine))).Methods(http.MethodGet)

	r.Handle("/price-plans/recommend/{smartMeterId}", withTimeout(timeout, NewRecommendHandler(
		logger.With(slog.String("handler", "recommend")),
		engine))).Methods(http.MethodGet)

	if db != nil {
		r.Handle("/log", withTimeout(timeout, NewLogHandler(
			logger.With(slog.String("handler", "log")),
			db))).Methods(http.MethodGet)
	}

	r.HandleFunc("/ws/meters/{smartMeterId}", s.handleWebsocket).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, r, http.StatusNotFound, "not_found", "not found")
	})

	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger: logger}),
		handlers.PrintRecoveryStack(true))
	s.handler = handlers.ProxyHeaders(recovery(r))

	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	meter := types.MeterID(mux.Vars(r)["smartMeterId"])
	client, err := NewClient(s.hub, w, r, meter)
	if err != nil {
		s.logger.Error("new websocket client failed", slog.Any("error", err))
		return
	}
	if !s.hub.register(client) {
		client.conn.Close()
		return
	}
	go client.WritePump()
	go client.ReadPump()
}

// Run serves until ctx is done and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run(ctx)

	addr := net.JoinHostPort(s.config.Address, strconv.Itoa(int(s.config.Port)))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting server...", slog.String("addr", addr), slog.String("version", s.version))

	srvErrors := make(chan error, 1)
	go func() {
		srvErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-srvErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		s.logger.Info("server stopped")
		return nil
	}
}
