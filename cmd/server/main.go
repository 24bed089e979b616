package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/devadigapratham/microdose/api"
	"github.com/devadigapratham/microdose/api/handlers"
	"github.com/devadigapratham/microdose/backend"
	"github.com/devadigapratham/microdose/config"
	"github.com/devadigapratham/microdose/dosing"
	"github.com/devadigapratham/microdose/logger"
	"github.com/devadigapratham/microdose/metrics"
	"github.com/devadigapratham/microdose/raft"
	"github.com/devadigapratham/microdose/store"
)

func main() {
	if err := newServerCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newServerCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Run a dosing station",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	config.BindFlags(cmd.Flags())
	return cmd
}

// history bundles the event log and preference store of one backend
type history struct {
	log    dosing.EventLog
	prefs  store.Preferences
	ready  func() error
	node   *raft.Node
	closer func() error
}

func openHistory(ctx context.Context, cfg *config.Config, log *zap.Logger) (*history, error) {
	if !cfg.Raft.Enabled {
		st, err := store.Open(cfg.Store.Path, cfg.Store.LogName)
		if err != nil {
			return nil, err
		}
		log.Info("local history opened", zap.String("path", cfg.Store.Path))
		return &history{log: st, prefs: st, ready: st.Ping, closer: st.Close}, nil
	}

	if err := os.MkdirAll(cfg.Raft.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create Raft directory: %w", err)
	}
	node, err := raft.NewNode(&raft.Config{
		NodeID:    cfg.Node.ID,
		RaftAddr:  cfg.Raft.Addr,
		RaftDir:   cfg.Raft.Dir,
		Bootstrap: cfg.Raft.Bootstrap && cfg.Raft.Join == "",
		Peers:     cfg.Raft.Peers,
	}, log)
	if err != nil {
		return nil, err
	}

	if cfg.Raft.Join != "" {
		log.Info("joining cluster", zap.String("join", cfg.Raft.Join))
		if err := raft.NewTransport(node).JoinCluster(ctx, cfg.Raft.Join, cfg.Node.ID, cfg.Raft.Addr); err != nil {
			// The leader can still add us later
			log.Warn("failed to join cluster", zap.Error(err))
		}
	}

	replicated := raft.NewReplicatedLog(node, cfg.Store.LogName)
	return &history{log: replicated, prefs: replicated, ready: node.Ready, node: node, closer: node.Shutdown}, nil
}

func openScanner(cfg *config.Config, log *zap.SugaredLogger) (dosing.Scanner, io.Closer, error) {
	if cfg.Scanner.Mode != config.ScannerReader {
		return dosing.NewDelayScanner(cfg.Dosing.ScanDelay), nil, nil
	}
	f, err := os.Open(cfg.Scanner.Device)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open scanner device: %w", err)
	}
	rs := dosing.NewReaderScanner(f, log)
	return rs, rs, nil
}

func run(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	log := logger.New(cfg.Log.Level, logger.Format(cfg.Log.Format))
	defer func() { _ = log.Sync() }()
	sugar := log.Sugar()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hist, err := openHistory(ctx, cfg, log)
	if err != nil {
		log.Error("history unavailable", zap.Error(err))
		return err
	}
	defer func() {
		if err := hist.closer(); err != nil {
			log.Error("error closing history", zap.Error(err))
		}
	}()

	scanner, scannerCloser, err := openScanner(cfg, sugar.Named("scanner"))
	if err != nil {
		return err
	}
	if scannerCloser != nil {
		defer scannerCloser.Close()
	}

	stationCfg := dosing.StationConfig{
		Rules:   dosing.Rules{Tolerance: cfg.Dosing.Tolerance},
		Log:     hist.log,
		Scanner: scanner,
		Logger:  sugar.Named("station"),
	}
	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		stationCfg.Observer = metrics.NewRecorder(reg)
		gatherer = reg
	}
	orders := dosing.NewManager(stationCfg)
	defer orders.Close()

	source, err := backend.NewClient(cfg.Backend.URL, cfg.Backend.Timeout, cfg.Backend.CacheSize, sugar.Named("backend"))
	if err != nil {
		return err
	}

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	health.AddReadinessCheck("history", hist.ready)

	handler := &handlers.Handler{
		Orders:  orders,
		History: hist.log,
		Prefs:   hist.prefs,
		Source:  source,
		Log:     sugar.Named("api"),
	}
	if hist.node != nil {
		handler.Leader = hist.node
	}

	server := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: api.SetupRouter(handler, api.RouterOptions{
			Node:     hist.node,
			Health:   health,
			Gatherer: gatherer,
			Logger:   log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Error("http server error", zap.Error(err))
			return err
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("error shutting down HTTP server", zap.Error(err))
	}
	log.Info("shutdown complete")
	return nil
}
