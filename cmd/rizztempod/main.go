package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rizztempo/rizztempo/internal/app"
	"github.com/rizztempo/rizztempo/internal/config"
	"github.com/rizztempo/rizztempo/internal/health"
	"github.com/rizztempo/rizztempo/internal/httpserver"
	"github.com/rizztempo/rizztempo/internal/ledger/async"
	"github.com/rizztempo/rizztempo/internal/logging"
	"github.com/rizztempo/rizztempo/internal/metrics"
	"github.com/rizztempo/rizztempo/internal/ratelimit"
	"github.com/rizztempo/rizztempo/internal/remote"
	"github.com/rizztempo/rizztempo/internal/scheduler"
	"github.com/rizztempo/rizztempo/internal/version"
	"github.com/rizztempo/rizztempo/internal/voice"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	const maxLogBytes = int64(100 * 1024 * 1024)
	out := io.Writer(os.Stdout)
	if target := strings.TrimSpace(cfg.LogFileDaemon); target != "" {
		rot, err := logging.NewRotatingWriter(target, maxLogBytes)
		if err != nil {
			log.Fatalf("init rotating log: %v", err)
		}
		// Mirror to stdout as well for foreground runs
		out = io.MultiWriter(os.Stdout, rot)
		defer rot.Close()
	}
	log.SetOutput(out)
	log.SetFlags(logging.Flags)
	log.SetPrefix(logging.Prefix("rizztempod", cfg.Environment, cfg.LogLevel))

	core, err := app.Open(cfg, out, "daemon")
	if err != nil {
		log.Fatalf("init core: %v", err)
	}
	defer core.Close()
	logger := core.Logger
	logger.Printf("rizztempod %s backend=%s", version.FullInfo(), cfg.BackendURL)

	collector := metrics.NewCollector()
	core.Client.SetObserver(func(info remote.CallInfo) {
		collector.RecordRemoteCall(info.Op, info.Target, info.Duration, info.Err)
	})

	journal, err := core.OpenJournal()
	if err != nil {
		logger.Fatalf("open journal: %v", err)
	}
	queued := async.New(journal, async.Config{Logger: logging.New(out, "journal", cfg.Environment, cfg.LogLevel)})
	core.Journal = queued

	ctx := context.Background()
	if err := core.Restore(ctx); err != nil {
		logger.Printf("restore session: %v", err)
	}
	if id := core.Auth.UserID(); id != "" {
		logger.Printf("restored session user=%s", id)
	}

	jobs := scheduler.New(time.UTC, logging.New(out, "scheduler", cfg.Environment, cfg.LogLevel))
	if err := jobs.Add(scheduler.Job{
		Name: "daily-challenge",
		Spec: cfg.ChallengeRefresh,
		Run: func(ctx context.Context) error {
			if core.Auth.UserID() == "" {
				return nil
			}
			return core.State.Challenge.Refetch(ctx)
		},
	}); err != nil {
		logger.Fatalf("schedule challenge refresh: %v", err)
	}
	jobs.Start()
	defer jobs.Stop()

	var voiceFactory httpserver.VoiceFactory
	if strings.TrimSpace(cfg.VoiceAgentID) != "" || strings.TrimSpace(cfg.VoiceAPIKey) != "" {
		voiceLogger := logging.New(out, "voice", cfg.Environment, cfg.LogLevel)
		voiceFactory = func(cb voice.Callbacks) voice.Conversation {
			c := voice.NewClient(cfg.VoiceURL, cfg.VoiceAPIKey, cb)
			c.SetLogger(voiceLogger)
			return c
		}
	} else {
		logger.Printf("voice agent not configured; voice routes disabled")
	}

	var limiter *ratelimit.Limiter
	if cfg.AuthRatePerMinute > 0 {
		limiter = ratelimit.New(ratelimit.Config{PerMinute: cfg.AuthRatePerMinute, Burst: cfg.AuthBurst})
	}
	checker := health.New(health.Config{
		BackendURL: cfg.BackendURL,
		AnonKey:    cfg.AnonKey,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		Stores:     map[string]health.Pinger{"state": core.Store, "journal": queued},
	})

	httpSrv := httpserver.New(httpserver.Services{
		Auth:         core.Auth,
		Accounts:     core.Accounts,
		State:        core.State,
		Journal:      queued,
		Metrics:      collector,
		Events:       core.Events,
		Plans:        core.Plans,
		Policy:       core.Policy(),
		Voice:        voiceFactory,
		VoiceAgentID: cfg.VoiceAgentID,
		PartnerName:  cfg.PartnerName,
		Health:       checker,
		AuthLimiter:  limiter,
	})
	httpSrv.SetLogger(cfg.LogLevel, logging.New(out, "http", cfg.Environment, cfg.LogLevel))

	srv := &http.Server{
		Addr:         cfg.HTTPAddress,
		Handler:      httpSrv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("rizztempod listening on %s", cfg.HTTPAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	<-sigs

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
	httpSrv.Shutdown(shutdownCtx)
	if dropped := queued.Dropped(); dropped > 0 {
		logger.Printf("journal dropped %d entries", dropped)
	}
}
