// Command wsnsim runs wireless sensor network lifetime simulations.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/oliwiapietka/LASensorNetwork/core"
	"github.com/oliwiapietka/LASensorNetwork/internal/config"
	"github.com/oliwiapietka/LASensorNetwork/internal/logging"
	"github.com/oliwiapietka/LASensorNetwork/internal/observability"
	"github.com/oliwiapietka/LASensorNetwork/sim"
)

var (
	configFile  string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "wsnsim",
	Short: "Wireless sensor network lifetime simulator",
	Long: `wsnsim simulates a wireless sensor network monitoring points of
interest. Sensors schedule themselves with learning automata, maintain a
connected cover set round by round, and report coverage to a base station
over a lossy multi-hop channel.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation from a configuration file",
	RunE:  runSimulation,
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Search for an optimized sensor placement and print it",
	RunE:  runOptimization,
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteDefault(configFile); err != nil {
			return err
		}
		fmt.Printf("Wrote default configuration to %s\n", configFile)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "Path to configuration file")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9090)")
	rootCmd.AddCommand(runCmd, optimizeCmd, initConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, cancel := signalContext()
	defer cancel()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	var collector *observability.SimCollector
	addr := metricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		collector, err = observability.NewSimCollector(nil)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		srv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error(ctx, "metrics server failed", logging.String("error", err.Error()))
			}
		}()
		defer srv.Close()
		log.Info(ctx, "metrics endpoint listening", logging.String("addr", addr))
	}

	manager := sim.NewManager(cfg, log, collector)

	var statsOut *json.Encoder
	if cfg.Output.StatsFile != "" {
		f, err := os.Create(cfg.Output.StatsFile)
		if err != nil {
			return fmt.Errorf("create stats file: %w", err)
		}
		defer f.Close()
		statsOut = json.NewEncoder(f)
		manager.OnRound = func(stats core.RoundStats) {
			if err := statsOut.Encode(stats); err != nil {
				log.Warn(ctx, "failed to write round stats", logging.String("error", err.Error()))
			}
		}
	}

	result, err := manager.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Simulation finished: %d rounds in %s (end reason: %s)\n",
		len(result.Rounds), result.Duration.Round(time.Millisecond), result.EndReason)
	if result.LifetimeRound > 0 {
		fmt.Printf("Network lifetime: %d rounds\n", result.LifetimeRound)
	}
	if n := len(result.Rounds); n > 0 {
		last := result.Rounds[n-1]
		fmt.Printf("Final state: active=%d sleep=%d dead=%d coverage_q=%.2f pdr=%.2f avg_latency=%.2f\n",
			last.ActiveSensors, last.SleepSensors, last.DeadSensors,
			last.CoverageQ, last.PDR, last.AvgLatency)
	}
	if cfg.Output.StatsFile != "" {
		fmt.Printf("Per-round statistics written to %s\n", cfg.Output.StatsFile)
	}
	return nil
}

func runOptimization(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, cancel := signalContext()
	defer cancel()

	manager := sim.NewManager(cfg, log, nil)
	placements, err := manager.OptimizePlacement(ctx)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(placements)
	if err != nil {
		return fmt.Errorf("marshal placements: %w", err)
	}
	fmt.Print(string(out))
	return nil
}
