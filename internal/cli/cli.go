// ============================================================================
// Beaver Queue CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// Purpose: Cobra-based command surface, grounded on internal/cli/cli.go's
// BuildCLI/run/enqueue/status command layout. The teacher's --mode/--master
// distributed-node flags are dropped along with the gRPC server they drove
// (see DESIGN.md); recovery participation is now a config toggle
// (Recovery.Enabled) rather than a CLI flag, since any instance running
// against the shared store may run it (spec.md §4.6).
// ============================================================================

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChuLiYu/beaver-queue/internal/clock"
	"github.com/ChuLiYu/beaver-queue/internal/config"
	"github.com/ChuLiYu/beaver-queue/internal/controller"
	"github.com/ChuLiYu/beaver-queue/internal/httpapi"
	"github.com/ChuLiYu/beaver-queue/internal/metrics"
	"github.com/ChuLiYu/beaver-queue/internal/registry"
	"github.com/ChuLiYu/beaver-queue/internal/store"
	"github.com/ChuLiYu/beaver-queue/internal/store/local"
	"github.com/ChuLiYu/beaver-queue/internal/store/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

var log = slog.Default()

var configFile string

// RegisterHandlers lets main wire its job handlers into the registry before
// the run command starts the controller, without this package needing to
// know about any concrete handler.
type RegisterHandlers func(*registry.Registry)

// BuildCLI assembles the root command and its subcommands. registerHandlers
// is invoked once the registry exists and before the controller starts.
func BuildCLI(registerHandlers RegisterHandlers) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "beaver-queue",
		Short:   "Beaver Queue: a durable, retry-aware asynchronous job queue",
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand(registerHandlers))
	rootCmd.AddCommand(buildSubmitCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func buildRunCommand(registerHandlers RegisterHandlers) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the queue system",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSystem(registerHandlers)
		},
	}
}

func buildStore(cfg *config.Config) (store.Store, func() error, error) {
	clk := clock.New()
	switch cfg.Store.Backend {
	case "", "local":
		return local.New(clk), func() error { return nil }, nil
	case "durable":
		d, err := local.NewDurable(cfg.WAL.Dir, clk, cfg.WAL.BufferSize, cfg.FlushInterval())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open durable store: %w", err)
		}
		return d, d.Close, nil
	case "shared":
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return shared.New(rdb), rdb.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func runSystem(registerHandlers RegisterHandlers) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	st, closeStore, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	snapshotStopCh := make(chan struct{})
	var snapshotWG sync.WaitGroup
	if d, ok := st.(*local.Durable); ok {
		snapshotWG.Add(1)
		go runSnapshotLoop(d, cfg.SnapshotInterval(), snapshotStopCh, &snapshotWG)
	}

	var mc *metrics.Collector
	if cfg.Metrics.Enabled {
		mc = metrics.NewCollector()
		go func() {
			if err := mc.StartServer(cfg.Metrics.Port); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	reg := registry.New()
	if registerHandlers != nil {
		registerHandlers(reg)
	}

	ctrl := controller.New(controller.Config{
		WorkerID:                     uuid.New(),
		MaximumConcurrency:           cfg.Worker.MaximumConcurrency,
		MaximumQueueSize:             cfg.Worker.MaximumQueueSize,
		PollingInterval:              cfg.PollingInterval(),
		BatchSize:                    cfg.Worker.BatchSize,
		JobTimeout:                   cfg.JobTimeout(),
		DefaultMaxRetries:            cfg.Retry.DefaultMaxRetries,
		RetryDelayBaseSeconds:        cfg.Retry.RetryDelayBaseSeconds,
		EnableDistributedJobRecovery: cfg.Recovery.Enabled,
		RecoveryCheckInterval:        cfg.RecoveryCheckInterval(),
	}, st, reg, clock.New(), mc)

	if err := ctrl.Start(); err != nil {
		return fmt.Errorf("failed to start controller: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	httpapi.NewHandler(ctrl, cfg.HTTP.JobIDHeaderName).Register(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: router,
	}
	go func() {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server stopped", "error", err)
		}
	}()

	log.Info("beaver-queue started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("received shutdown signal, stopping gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	ctrl.Stop()

	close(snapshotStopCh)
	snapshotWG.Wait()

	log.Info("beaver-queue stopped")
	return nil
}

// runSnapshotLoop periodically checkpoints a durable store (snapshot +
// WAL rotation, spec.md §10's supplemented crash-durability feature) so a
// restart replays a bounded WAL instead of one that grows without limit.
func runSnapshotLoop(d *local.Durable, interval time.Duration, stopCh <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			if err := d.Checkpoint(); err != nil {
				log.Error("final checkpoint failed", "error", err)
			}
			return
		case <-ticker.C:
			if err := d.Checkpoint(); err != nil {
				log.Error("checkpoint failed", "error", err)
			}
		}
	}
}

func buildSubmitCommand() *cobra.Command {
	var jobFile string
	var remoteAddr string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit jobs from a JSON file",
		Long:  "Read job definitions from a JSON file and submit them. Use --remote to submit over HTTP to a running instance.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobFile == "" {
				return fmt.Errorf("job file is required (use --file or -f)")
			}
			return submitJobs(jobFile, remoteAddr)
		},
	}

	cmd.Flags().StringVarP(&jobFile, "file", "f", "", "JSON file containing job definitions")
	cmd.Flags().StringVar(&remoteAddr, "remote", "", "Base URL (e.g. http://localhost:8080) for remote HTTP submission")
	cmd.MarkFlagRequired("file")

	return cmd
}

type jobInput struct {
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	MaxRetries *int            `json:"max_retries"`
}

func submitJobs(filePath, remoteAddr string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read job file: %w", err)
	}

	var jobsInput []jobInput
	if err := json.Unmarshal(data, &jobsInput); err != nil {
		return fmt.Errorf("failed to parse job file: %w", err)
	}

	if remoteAddr == "" {
		return fmt.Errorf("local submission requires a running controller; use --remote to submit to one over HTTP")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	successCount := 0
	for _, j := range jobsInput {
		body, _ := json.Marshal(j)
		resp, err := client.Post(remoteAddr+"/jobs", "application/json", bytes.NewReader(body))
		if err != nil {
			log.Error("submit failed", "name", j.Name, "error", err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			log.Error("submit rejected", "name", j.Name, "status", resp.StatusCode)
			continue
		}
		successCount++
	}
	log.Info("submitted jobs", "success", successCount, "total", len(jobsInput))
	return nil
}

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus()
		},
	}
}

func showStatus() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println("Beaver Queue configuration:")
	fmt.Printf("  config file:        %s\n", configFile)
	fmt.Printf("  store backend:      %s\n", cfg.Store.Backend)
	fmt.Printf("  maximum concurrency: %d\n", cfg.Worker.MaximumConcurrency)
	fmt.Printf("  polling interval:   %s\n", cfg.PollingInterval())
	fmt.Printf("  job timeout:        %s\n", cfg.JobTimeout())
	fmt.Printf("  default max retries: %d\n", cfg.Retry.DefaultMaxRetries)
	fmt.Printf("  recovery enabled:   %v\n", cfg.Recovery.Enabled)
	fmt.Printf("  metrics enabled:    %v (port %d)\n", cfg.Metrics.Enabled, cfg.Metrics.Port)
	fmt.Printf("  http port:          %d\n", cfg.HTTP.Port)
	return nil
}
