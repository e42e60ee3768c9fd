// Command api is the payment intermediary's HTTP surface: it wires Clock,
// Config, Store, the Processor pool, the Health Oracle, the Dispatch
// Worker Pool and the Accounting layer together and serves the ingestion
// and summary endpoints.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"

	"github.com/rinha/payment-intermediary/internal/accounting"
	"github.com/rinha/payment-intermediary/internal/clock"
	"github.com/rinha/payment-intermediary/internal/config"
	"github.com/rinha/payment-intermediary/internal/handlers"
	"github.com/rinha/payment-intermediary/internal/health"
	"github.com/rinha/payment-intermediary/internal/logging"
	"github.com/rinha/payment-intermediary/internal/processor"
	"github.com/rinha/payment-intermediary/internal/store"
	"github.com/rinha/payment-intermediary/internal/worker"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		// Config failure: log to stderr directly, the structured logger is
		// not up yet and never will be.
		os.Stderr.WriteString(err.Error() + "\n")
		return 1
	}

	log := logging.New(cfg.LogLevel)

	st, err := store.New(cfg.RedisURL)
	if err != nil {
		log.Error().Err(err).Msg("startup: invalid store url")
		return 1
	}
	defer st.Close()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelStartup()
	if err := st.Ping(startupCtx); err != nil {
		log.Error().Err(err).Msg("startup: store unreachable")
		return 1
	}

	procs := processor.NewPool(cfg.DefaultProcessorURL, cfg.FallbackProcessorURL, cfg.WorkerCount)
	oracle := health.New(st, procs, cfg.HealthProbeInterval, log)
	acct := accounting.New(st)
	pool := worker.New(st, procs, oracle, acct, cfg.WorkerCount, cfg.MaxAttempts, log)

	h := &handlers.Handlers{
		Store:      st,
		Accounting: acct,
		Purge:      st,
		Clock:      clock.Real{},
		Log:        log,
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		IdleTimeout:           cfg.ServerKeepAlive,
	})
	app.Post("/payments", h.PaymentHandler)
	app.Get("/payments-summary", h.PaymentsSummaryHandler)
	app.Post("/purge-payments", h.PurgePaymentsHandler)

	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()
	oracle.Start(bgCtx)
	pool.Start(bgCtx)
	go store.RunSweeper(bgCtx, st, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.ListenAddr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server: listen failed")
			return 1
		}
	case <-sigCh:
		log.Info().Msg("shutdown: signal received")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	defer cancelShutdown()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown: http server shutdown error")
	}

	// Workers own in-flight dispatches, not client connections — stopping
	// the HTTP server above does not cancel them. Cancelling bgCtx stops the
	// loops from dequeuing more work but does not abort the attempt each is
	// on (dispatch runs on a detached context); wait for those attempts up to
	// the same drain deadline. Un-acked queue entries remain in the store.
	cancelBg()
	waitCh := make(chan struct{})
	go func() {
		pool.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
	case <-shutdownCtx.Done():
	}

	return 0
}
