package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	ragstream "github.com/TharushaKula/RAG-agent-sub001"
	"github.com/TharushaKula/RAG-agent-sub001/server"
	"github.com/TharushaKula/RAG-agent-sub001/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := serveCmd.String("addr", "", "Listen address (overrides RAGSTREAM_ADDR)")

	if len(os.Args) < 2 {
		fmt.Println("Expected 'serve' subcommand")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		serveCmd.Parse(os.Args[2:])
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		fmt.Println("Expected 'serve' subcommand")
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := ragstream.LoadConfig()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *ragstream.Config, logger *slog.Logger) error {
	var docs server.ContextStore
	var profiles server.ProfileStore
	if cfg.PostgresURI != "" {
		st, err := store.Open(cfg.PostgresURI)
		if err != nil {
			return err
		}
		docs, profiles = st, st
	} else {
		logger.Warn("POSTGRES_URI not set, using in-memory store")
		mem := store.NewMemory()
		docs, profiles = mem, mem
	}

	chat := &server.ChatHandler{
		LLM:    server.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL),
		Store:  docs,
		Model:  cfg.Model,
		Logger: logger,
	}
	analyzer := &server.AnalyzerHandler{
		Analyzer: &server.GitHubAnalyzer{Token: cfg.GitHubToken, Store: docs, Logger: logger},
		Logger:   logger,
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.NewMux(chat, analyzer, docs, profiles, logger),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
