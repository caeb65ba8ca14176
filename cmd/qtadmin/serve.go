package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pavelanni/qtadmin/internal/handler"
	"github.com/pavelanni/qtadmin/internal/llm"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local console API",
		RunE:  run(runServe),
	}
	f := cmd.Flags()
	f.StringP("addr", "a", "127.0.0.1:8090", "HTTP listen address")
	f.String("console-password", "", "Password required for the console (or set QTADMIN_CONSOLE_PASSWORD)")
	addLLMFlags(cmd)
	return cmd
}

func addLLMFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("llm-url", "", "OpenAI-compatible API base URL; empty disables drafting")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
}

// drafter returns the drafting client, or nil when no endpoint is configured.
func (a *app) drafter() *llm.Client {
	url := a.v.GetString("llm-url")
	if url == "" {
		return nil
	}
	return llm.New(url, a.v.GetString("llm-key"), a.v.GetString("llm-model"))
}

func runServe(a *app, _ []string) error {
	ctx, stop := signal.NotifyContext(a.ctx(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if res := a.session.Restore(ctx); !res.Success {
		slog.Warn("no saved session", "error", res.Error)
	}

	cfg := handler.Config{Lang: a.v.GetString("lang")}
	if pw := a.v.GetString("console-password"); pw != "" {
		hash, err := handler.HashPassword(pw)
		if err != nil {
			return fmt.Errorf("hash console password: %w", err)
		}
		cfg.PasswordHash = hash
	} else {
		slog.Warn("console password not set; the API is open to anyone who can reach it")
	}

	var drafter handler.Drafter
	if c := a.drafter(); c != nil {
		if err := c.Ping(ctx); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", a.v.GetString("llm-url"), "model", a.v.GetString("llm-model"))
		drafter = c
	}

	h := handler.New(a.templates, a.session, a.client, drafter, cfg)
	srv := &http.Server{
		Addr:              a.v.GetString("addr"),
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", srv.Addr,
			"api_url", a.v.GetString("api-url"),
			"lang", cfg.Lang,
			"drafting", drafter != nil,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
