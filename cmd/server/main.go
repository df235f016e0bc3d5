package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"goa.design/clue/log"

	"github.com/ratemysite/backend/internal/analysis"
	"github.com/ratemysite/backend/internal/config"
	"github.com/ratemysite/backend/internal/mock"
	"github.com/ratemysite/backend/internal/monitor"
	"github.com/ratemysite/backend/internal/publish"
	"github.com/ratemysite/backend/internal/scoring"
	"github.com/ratemysite/backend/internal/session"
	"github.com/ratemysite/backend/internal/web"
)

func main() {
	mockMode := flag.Bool("mock", false, "Use the simulated scorer instead of RateMySite")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	debug := flag.Bool("debug", false, "Log debug messages")
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *debug {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf(ctx, err, "failed to load .env")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf(ctx, err, "failed to load config")
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storeOpts := []session.Option{session.WithRetention(cfg.Sessions.Retention)}
	mem, err := monitor.NewProcessMemory()
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "memory sampling disabled"})
	} else if budget := cfg.MemoryBudgetBytes(); budget > 0 {
		storeOpts = append(storeOpts, session.WithMemoryBudget(mem, budget))
	}
	store := session.NewStore(storeOpts...)
	go store.Run(ctx, cfg.Sessions.SweepInterval)

	var scorer scoring.Scorer
	if *mockMode {
		log.Print(ctx, log.KV{K: "msg", V: "starting in mock mode"})
		scorer = mock.NewScorer()
	} else {
		log.Print(ctx, log.KV{K: "msg", V: "scoring via RateMySite"}, log.KV{K: "endpoint", V: cfg.Scoring.Endpoint})
		scorer = scoring.NewHTTPScorer(cfg.Scoring.Endpoint, cfg.Scoring.UserAgent, &http.Client{})
	}

	health := monitor.NewHealth(cfg.Monitor.FailureThreshold)
	orch := analysis.New(store, scorer, analysis.Options{
		MaxURLs:      cfg.Analysis.MaxURLs,
		ScoreTimeout: cfg.Analysis.ScoreTimeout,
		EventBuffer:  cfg.Analysis.EventBuffer,
		DebugRate:    cfg.Analysis.DebugRate,
		DebugBurst:   cfg.Analysis.DebugBurst,
	})
	orch.SetHealth(health)

	if cfg.Redis.URL != "" {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pub, err := publish.NewRedisPublisher(pctx, cfg.Redis.URL, cfg.Redis.Channel)
		cancel()
		if err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "result publishing disabled"})
		} else {
			defer pub.Close()
			orch.SetPublisher(pub)
			log.Printf(ctx, "publishing results to redis channel %s", pub.Channel())
		}
	}

	server := web.NewServer(ctx, store, orch)
	server.SetHealth(health)
	if mem != nil {
		server.SetMemorySampler(mem)
	}

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	if err := web.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port, web.Handler(mux), 10*time.Second); err != nil {
		log.Fatalf(ctx, err, "server error")
	}
	log.Print(ctx, log.KV{K: "msg", V: "shut down"})
}
