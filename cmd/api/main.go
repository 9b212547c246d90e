package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"

	"callcenter-platform/internal/agents"
	"callcenter-platform/internal/auth"
	"callcenter-platform/internal/campaigns"
	"callcenter-platform/internal/cdr"
	"callcenter-platform/internal/config"
	"callcenter-platform/internal/contacts"
	"callcenter-platform/internal/dialer"
	"callcenter-platform/internal/dispositions"
	"callcenter-platform/internal/dnc"
	"callcenter-platform/internal/httpapi"
	"callcenter-platform/internal/metrics"
	"callcenter-platform/internal/pbx"
	"callcenter-platform/internal/telephony"
	"callcenter-platform/pkg/ami"
	"callcenter-platform/pkg/logger"
	"callcenter-platform/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	m := metrics.New()
	metrics.SetGlobal(m)

	// Services over SQL repositories.
	agentSvc := agents.NewService(agents.NewSQLRepo(db))
	nodeSvc := pbx.NewService(pbx.NewSQLRepo(db))
	dncSvc := dnc.NewService(dnc.NewSQLRepo(db), rdb)
	dispositionSvc := dispositions.NewService(dispositions.NewSQLRepo(db))
	campaignRepo := campaigns.NewSQLRepo(db)
	campaignSvc := campaigns.NewService(campaignRepo, dncSvc, contacts.NewSQLRepo(db))
	recordSvc := cdr.NewService(cdr.NewSQLRepo(db))
	statsSvc := campaigns.NewStatsService(campaignRepo, agentSvc, recordSvc)

	// AMI boundary. Mock mode keeps the whole call flow runnable
	// without a reachable PBX.
	dial := ami.DialFunc(ami.Dial)
	if cfg.Dialer.MockAMI {
		log.Warn("AMI mock mode enabled; no real calls will be placed", "mock", true)
		dial = ami.MockDial(ami.NewMockClient())
	}
	gateway := telephony.NewGateway(nodeSvc, agentSvc, campaignRepo, recordSvc, dial, cfg.Dialer.DefaultRingTimeout, log)
	engine := dialer.NewEngine(campaignSvc, agentSvc, dncSvc, dispositionSvc, recordSvc, gateway, rdb, log)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(metrics.Middleware())

	h := httpapi.Handlers{
		Auth:         authManager,
		Agents:       agentSvc,
		Campaigns:    campaignSvc,
		Stats:        statsSvc,
		Records:      recordSvc,
		Dispositions: dispositionSvc,
		Dnc:          dncSvc,
		Pbx:          nodeSvc,
		Gateway:      gateway,
		Dialer:       engine,
	}
	registerRoutes(r, h, auth.RequireAccessToken(authManager), m)

	// The dialer tick loop drives progressive and predictive
	// campaigns; the HTTP layer never places automatic calls itself.
	go runDialer(rootCtx, engine, cfg.Dialer.TickInterval, log)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "mock_ami", cfg.Dialer.MockAMI)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

func runDialer(ctx context.Context, engine *dialer.Engine, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := engine.Tick(ctx); err != nil {
				log.Error("dialer tick failed", "err", err)
			}
		}
	}
}
