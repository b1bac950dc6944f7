package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docchat/internal/config"
	"docchat/internal/ingest"
	"docchat/internal/logger"
	"docchat/internal/relay"
	"docchat/internal/server"
	"docchat/internal/session"
	"docchat/internal/store"
	"docchat/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger.SetLevel(cfg.Log.Level)

	st := store.Open("docchat.db")
	defer st.Close()

	registry := session.NewRegistry()

	var retriever upstream.Retriever
	ingestSvc := &ingest.Service{
		MaxFileBytes: cfg.Ingest.MaxFileBytes,
		MaxFiles:     cfg.Ingest.MaxFiles,
		Timeout:      cfg.Ingest.Timeout,
	}
	if cfg.Ingest.PipelineURL != "" {
		ingestSvc.Pipeline = &ingest.HTTPPipeline{BaseURL: cfg.Ingest.PipelineURL, Client: http.DefaultClient}
		retriever = &ingest.HTTPRetriever{BaseURL: cfg.Ingest.PipelineURL, Client: http.DefaultClient}
	} else {
		logger.L.Warn().Msg("no pipeline URL configured; ingestion and retrieval are disabled")
	}

	opener := upstream.NewClient(cfg.Upstream, retriever)
	rly := &relay.Relay{DevMode: cfg.Server.DevMode, Recorder: st}

	srv := server.New(cfg.Server, registry, opener, rly, ingestSvc, st)

	go func() {
		addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.L.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.L.Error().Err(err).Msg("shutdown failed")
	}
}
