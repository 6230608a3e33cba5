package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/agent-boss/internal/agent"
	"github.com/danielpatrickdp/agent-boss/internal/broadcast"
	"github.com/danielpatrickdp/agent-boss/internal/codec"
	"github.com/danielpatrickdp/agent-boss/internal/config"
	"github.com/danielpatrickdp/agent-boss/internal/judge"
	"github.com/danielpatrickdp/agent-boss/internal/llm"
	"github.com/danielpatrickdp/agent-boss/internal/logging"
	"github.com/danielpatrickdp/agent-boss/internal/memory"
	"github.com/danielpatrickdp/agent-boss/internal/metrics"
	"github.com/danielpatrickdp/agent-boss/internal/orchestrator"
	"github.com/danielpatrickdp/agent-boss/internal/reflection"
	"github.com/danielpatrickdp/agent-boss/internal/task"
	"github.com/danielpatrickdp/agent-boss/internal/websearch"
)

// #region app

// app holds the infrastructure shared by every run: config, logger, store,
// event recorder, metrics and model access.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	store    *memory.Store
	rec      *logging.Recorder
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	gen      llm.Generator
	search   websearch.Searcher

	natsConn *nats.Conn
	codec    *codec.CodecClient
}

// newApp loads config from path and wires dependencies. Close releases them.
func newApp(path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, log: log}
	if err := a.init(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init() error {
	store, err := memory.NewStore(a.cfg.Memory.Path)
	if err != nil {
		return fmt.Errorf("open memory %s: %w", a.cfg.Memory.Path, err)
	}
	a.store = store

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)
	a.rec = logging.NewRecorder(a.log, logging.SQLSink{DB: store.DB()}, a.metrics)

	if a.cfg.NATS.URL != "" {
		nc, err := broadcast.Connect(a.cfg.NATS)
		if err != nil {
			a.log.Warn("event broadcast disabled", zap.String("url", a.cfg.NATS.URL), zap.Error(err))
		} else {
			a.natsConn = nc
			a.rec.AddSink(broadcast.NewSink(nc, a.cfg.NATS.SubjectPrefix))
			a.log.Info("broadcasting events", zap.String("url", a.cfg.NATS.URL), zap.String("prefix", a.cfg.NATS.SubjectPrefix))
		}
	}

	if a.cfg.Codec.Addr != "" {
		client, err := codec.NewCodecClient(a.cfg.Codec.Addr)
		if err != nil {
			return fmt.Errorf("connect codec service at %s: %w", a.cfg.Codec.Addr, err)
		}
		a.codec = client
		if a.cfg.WebSearch.Enabled {
			a.search = client
		}
	}

	gen, err := a.generator()
	if err != nil {
		return err
	}
	a.gen = gen

	a.log.Info("agent-boss ready",
		zap.String("db", a.cfg.Memory.Path),
		zap.String("llm_provider", a.cfg.LLM.Provider),
		zap.Bool("codec", a.codec != nil),
		zap.Bool("web_search", a.search != nil),
		zap.Bool("broadcast", a.natsConn != nil),
	)
	return nil
}

// generator picks the model backend. With both OpenAI and codec configured
// the codec service backs up OpenAI.
func (a *app) generator() (llm.Generator, error) {
	switch a.cfg.LLM.Provider {
	case "none":
		return nil, nil
	case "codec":
		return a.codec, nil
	}
	openai, err := llm.NewOpenAI(a.cfg.LLM, a.log)
	if err != nil {
		return nil, err
	}
	chain := []llm.Named{{Name: "openai", Generator: openai}}
	if a.codec != nil {
		chain = append(chain, llm.Named{Name: "codec", Generator: a.codec})
	}
	fb, err := llm.NewFallback(a.log, chain...)
	if err != nil {
		return nil, err
	}
	return fb, nil
}

// Close releases all infrastructure resources.
func (a *app) Close() {
	if a.natsConn != nil {
		if err := a.natsConn.Drain(); err != nil {
			a.natsConn.Close()
		}
	}
	if a.codec != nil {
		_ = a.codec.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// #endregion app

// #region boss

// newBoss builds a Boss with its own executors, so concurrent runs never
// share retry counters.
func (a *app) newBoss() (*orchestrator.Boss, error) {
	evaluator, err := reflection.New(a.cfg.Reflection)
	if err != nil {
		return nil, err
	}
	sm, err := a.cfg.StateMachine.Machine()
	if err != nil {
		return nil, err
	}
	opts := []agent.Option{
		agent.WithLogger(a.log),
		agent.WithRecorder(a.rec),
		agent.WithEvaluator(evaluator),
		agent.WithMaxRetries(a.cfg.Orchestrator.MaxRetries),
	}
	execs := orchestrator.Executors{
		Gathering: agent.NewGatherer(a.search, a.cfg.WebSearch, a.gen, opts...),
		Analysis:  agent.NewAnalyst(a.gen, opts...),
		Planning:  agent.NewPlanner(a.gen, opts...),
	}
	var j judge.Judge
	if a.gen != nil {
		j = judge.NewModelJudge(a.gen, a.log)
	}
	cfg := orchestrator.Config{
		MaxRetries:   a.cfg.Orchestrator.MaxRetries,
		Thresholds:   a.cfg.Reflection,
		StateMachine: sm,
		Backoff:      a.cfg.Orchestrator.Backoff,
	}
	return orchestrator.New(cfg, execs, j,
		orchestrator.WithMemory(a.store),
		orchestrator.WithRecorder(a.rec),
		orchestrator.WithMetrics(a.metrics),
		orchestrator.WithLogger(a.log),
		orchestrator.WithTracerProvider(otel.GetTracerProvider()),
	)
}

// Run executes goal on a fresh Boss. It satisfies httpapi.Runner.
func (a *app) Run(ctx context.Context, goal string) task.OrchestrationResult {
	boss, err := a.newBoss()
	if err != nil {
		a.log.Error("build boss failed", zap.Error(err))
		return task.OrchestrationResult{
			Goal:            goal,
			RunID:           uuid.NewString(),
			CompletedAt:     time.Now().UTC(),
			Executors:       []string{},
			Confidence:      map[string]task.ExecutorConfidence{},
			Insights:        []string{"Error: " + err.Error()},
			Recommendations: []string{},
			Sources:         []task.Source{},
			Failed:          true,
		}
	}
	return boss.Run(ctx, goal)
}

// #endregion boss
