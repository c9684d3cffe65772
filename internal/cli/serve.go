package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"rollcall/internal/platform/config"
	"rollcall/internal/platform/httpserver"
	"rollcall/internal/platform/logger"
)

const shutdownTimeout = 10 * time.Second

var (
	serveAddr   string
	servePolicy string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides ROLLCALL_ADDR)")
	serveCmd.Flags().StringVar(&servePolicy, "policy", "", "Path to policy YAML (overrides ROLLCALL_POLICY_FILE)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the verification HTTP server",
	Long:  "Runs the verification API. The policy file is hot-reloaded; verification thresholds apply to the next request while code, strike and enrollment settings are fixed at startup.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.FromEnv()
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	if servePolicy != "" {
		cfg.PolicyPath = servePolicy
	}
	log := logger.New()

	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	holder := config.NewPolicyHolder(policy)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, holder, log, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	defer a.close()

	var wg sync.WaitGroup
	bg, cancelBG := context.WithCancel(context.WithoutCancel(ctx))
	for _, run := range a.run {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(bg)
		}()
	}
	if cfg.PolicyPath != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := config.Watch(bg, cfg.PolicyPath, holder, log); err != nil {
				log.Warn("policy hot-reload disabled", "error", err)
			}
		}()
	}

	srv := httpserver.New(cfg.Addr, a.handler, cfg.RequestTimeout)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting rollcall", "addr", cfg.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error("graceful shutdown failed", "error", shutdownErr)
	}

	// Background loops stop after the server so in-flight requests can still
	// publish; the dispatcher drains on cancel.
	cancelBG()
	wg.Wait()
	return err
}
