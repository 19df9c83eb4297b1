// Command cityd runs the authoritative city simulation server.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/civitas/internal/api"
	"github.com/talgya/civitas/internal/archive"
	"github.com/talgya/civitas/internal/config"
	"github.com/talgya/civitas/internal/engine"
	"github.com/talgya/civitas/internal/ledger"
	"github.com/talgya/civitas/internal/store"
	"github.com/talgya/civitas/internal/transport"
)

var (
	flagDBPath     string
	flagTuning     string
	flagPort       int
	flagSeed       int64
	flagArchiveDir string
	flagLogLevel   string
)

func main() {
	root := &cobra.Command{
		Use:   "cityd",
		Short: "Authoritative tick-based city economy server",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation and its HTTP/WebSocket API",
		RunE:  runServe,
	}
	serve.Flags().StringVar(&flagDBPath, "db", "data/city.db", "sqlite database path")
	serve.Flags().StringVar(&flagTuning, "tuning", "", "tuning yaml file (defaults baked in)")
	serve.Flags().IntVar(&flagPort, "port", 8080, "HTTP listen port")
	serve.Flags().Int64Var(&flagSeed, "seed", 42, "world seed")
	serve.Flags().StringVar(&flagArchiveDir, "archive", "", "tick feed archive directory (empty disables)")
	serve.Flags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug|info|warn|error)")

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Verify the ledger hash chain of an existing database",
		RunE:  runVerify,
	}
	verify.Flags().StringVar(&flagDBPath, "db", "data/city.db", "sqlite database path")

	root.AddCommand(serve, verify)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging() {
	level := slog.LevelInfo
	switch flagLogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

func runServe(cmd *cobra.Command, args []string) error {
	setupLogging()

	cfg := config.Default()
	if flagTuning != "" {
		loaded, err := config.Load(flagTuning)
		if err != nil {
			return err
		}
		cfg = loaded
		slog.Info("tuning loaded", "path", flagTuning)
	}

	if dir := filepath.Dir(flagDBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := store.Open(flagDBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	slog.Info("database opened", "path", flagDBPath)

	led := ledger.New(db)
	city, err := engine.NewCity(cfg, db, led, flagSeed)
	if err != nil {
		return fmt.Errorf("initialize city: %w", err)
	}
	slog.Info("city restored", "tick", city.CurrentTick())

	sched := engine.NewScheduler(city)

	hub := transport.NewHub()
	hub.OnAction = func(req engine.ActionRequest) {
		sched.Queue().Submit(req)
	}

	var feed *archive.FeedWriter
	if flagArchiveDir != "" {
		feed = archive.NewFeedWriter(flagArchiveDir)
		defer feed.Close()
		slog.Info("tick archive enabled", "dir", flagArchiveDir)
	}

	sched.OnOutput = func(out engine.TickOutput) {
		hub.Broadcast(out)
		for _, res := range out.Results {
			hub.SendResult(res)
		}
		if feed != nil {
			if err := feed.WriteTick(out); err != nil {
				slog.Error("archive write failed", "tick", out.Tick, "error", err)
			}
		}
	}

	server := api.New(flagPort, sched, db, led, hub, os.Getenv("CITYD_ADMIN_KEY"))
	server.Start()
	defer server.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		sched.Stop()
	}()

	sched.Run()

	// Give in-flight HTTP responses a moment before the deferred closes run.
	time.Sleep(100 * time.Millisecond)
	slog.Info("goodbye", "tick", city.CurrentTick())
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	setupLogging()

	db, err := store.Open(flagDBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	led := ledger.New(db)
	brokenID, err := led.VerifyChain()
	if err != nil {
		return err
	}
	if brokenID >= 0 {
		return fmt.Errorf("ledger chain broken at entry %d", brokenID)
	}

	supply, err := led.MoneySupply()
	if err != nil {
		return err
	}
	fmt.Printf("ledger chain intact, money supply %d\n", supply)
	return nil
}
