package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flitsinc/chatwire/internal/ai"
	"github.com/flitsinc/chatwire/internal/api"
	"github.com/flitsinc/chatwire/internal/auth"
	"github.com/flitsinc/chatwire/internal/config"
	"github.com/flitsinc/chatwire/internal/engine"
	"github.com/flitsinc/chatwire/internal/gateway"
	"github.com/flitsinc/chatwire/internal/metrics"
	"github.com/flitsinc/chatwire/internal/state"
	"github.com/flitsinc/chatwire/internal/tokenizer"
	"github.com/flitsinc/chatwire/internal/tools"
	"github.com/flitsinc/chatwire/internal/web"
)

func main() {
	cfg := config.Load()
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}

	db, err := state.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := state.NewStore(db)
	if err := store.SeedDefaults(context.Background()); err != nil {
		log.Fatalf("seed templates: %v", err)
	}

	var llmClient *ai.Client
	if cfg.LLMAPIKey != "" {
		llmClient, err = ai.NewClient(ai.Config{
			Provider: cfg.LLMProvider,
			Model:    cfg.LLMModel,
			APIKey:   cfg.LLMAPIKey,
		})
		if err != nil {
			log.Printf("LLM disabled: %v", err)
		}
	}

	registry := tools.NewRegistry(
		tools.NewChartGenerator(llmClient),
		tools.NewCodingAgent(llmClient),
		tools.NewMathCalculations(),
	)
	if err := registry.LoadExternal(cfg.ToolsConfigPath); err != nil {
		log.Printf("external tools disabled: %v", err)
	}

	var verifier auth.Verifier
	if cfg.GoogleClientID != "" {
		verifier = auth.NewGoogleVerifier(cfg.GoogleClientID)
	}

	var counter tokenizer.Tokenizer
	if cfg.LLMProvider == "google" && cfg.LLMAPIKey != "" {
		counter, err = tokenizer.NewGemini(context.Background(), cfg.LLMAPIKey)
		if err != nil {
			log.Printf("gemini tokenizer unavailable, using approximation: %v", err)
			counter = tokenizer.Approximate{}
		}
	} else {
		counter = tokenizer.Approximate{}
	}

	registryProm := prometheus.NewRegistry()
	registryProm.MustRegister(collectors.NewGoCollector())
	registryProm.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mset := metrics.New(registryProm)

	gw := &gateway.Gateway{
		Engine:               engine.NewLLM(llmClient, registry),
		Registry:             registry,
		Verifier:             verifier,
		Tokenizer:            counter,
		TokenizerModel:       cfg.TokenizerModel,
		AllowedOrigins:       cfg.AllowedOrigins,
		CredentialConfigured: llmClient != nil,
		Metrics:              mset,
	}

	apiServer := &api.Server{Store: store, Verifier: verifier, StartedAt: time.Now()}
	webServer := &web.Server{Dir: cfg.WebDir}

	mux := http.NewServeMux()
	mux.Handle("/client-ws", gw.Handler())
	mux.Handle("/api/", apiServer.Handler())
	mux.Handle("/auth/google", apiServer.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(registryProm, promhttp.HandlerOpts{}))
	mux.Handle("/", webServer.Handler())

	listener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	serverCtx, serverCancel := context.WithCancel(context.Background())
	httpServer := &http.Server{
		Handler:           loggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return serverCtx
		},
	}

	go func() {
		log.Printf("chatd listening on %s", listener.Addr())
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	serverCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	_ = httpServer.Close()
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/client-ws" {
			// Websocket upgrades hold the connection open; logging
			// duration here would be misleading.
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
