package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/izukuuuu/opinion-system-sub001/backend/internal/graphsync"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/outcome"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/services"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/topics"
	"github.com/izukuuuu/opinion-system-sub001/backend/pkg/config"
	"github.com/izukuuuu/opinion-system-sub001/backend/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	topic      string
	date       string
	dataset    string
	bucket     string
	clearGraph bool
	clearTopic bool
	topicDir   string

	cfg *config.Config
	sm  *services.ServiceManager
)

// loadConfig and newServices are replaced in tests
var (
	loadConfig  = config.Load
	newServices = func(cfg *config.Config) (*services.ServiceManager, error) {
		return services.NewServiceManager(cfg, services.Options{Logger: logger.Get()})
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "rebuild",
	Short:        "Project public-opinion data into the knowledge graph",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			os.Setenv("GRAPH_CONFIG", configPath)
		}
		var err error
		cfg, err = loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := logger.Init(cfg.Env); err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		sm, err = newServices(cfg)
		if err != nil {
			return fmt.Errorf("initializing services: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		logger.Sync()
		if sm == nil {
			return nil
		}
		return sm.Close(context.Background())
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRebuild(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the graph YAML config")
	rootCmd.PersistentFlags().StringVarP(&topic, "topic", "t", "", "Topic scope (project name)")
	rootCmd.PersistentFlags().StringVarP(&date, "date", "d", "", "Date or date range of the run")

	rootCmd.Flags().StringVar(&dataset, "dataset", "", "Source database name, or a directory of JSONL channel tables")
	rootCmd.Flags().StringVar(&bucket, "source", "", "Source bucket (filter, clean, merge)")
	rootCmd.Flags().BoolVar(&clearGraph, "clear-graph", false, "Delete the topic's nodes before syncing")

	syncCmd.Flags().StringVar(&dataset, "dataset", "", "Source database name, or a directory of JSONL channel tables")

	topicsCmd.Flags().StringVar(&topicDir, "dir", "", "Clustering output directory (default <data_root>/topic/<topic>/<date>)")
	topicsCmd.Flags().BoolVar(&clearTopic, "clear", false, "Delete the project's topic nodes before writing")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(topicsCmd)
	rootCmd.AddCommand(schemaCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync channel tables into Post, Account and Platform nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireScope(); err != nil {
			return err
		}
		res := sm.Sync(cmd.Context(), graphsync.Request{Topic: topic, Date: date, Dataset: dataset})
		return report(cmd.OutOrStdout(), res.Status, res)
	},
}

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Sync clustering output into the topic hierarchy",
	RunE: func(cmd *cobra.Command, args []string) error {
		if topic == "" {
			return fmt.Errorf("--topic is required")
		}
		if topicDir == "" && date == "" {
			return fmt.Errorf("--date or --dir is required")
		}
		res := sm.SyncTopics(cmd.Context(), topics.Request{Project: topic, Date: date, Dir: topicDir, ClearExisting: clearTopic})
		return report(cmd.OutOrStdout(), res.Status, res)
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Ensure constraints, indexes and seed platforms exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		res := sm.BootstrapSchema(cmd.Context())
		return report(cmd.OutOrStdout(), res.Status, res)
	},
}

func runRebuild(cmd *cobra.Command) error {
	if err := requireScope(); err != nil {
		return err
	}
	res := sm.Rebuild(cmd.Context(), services.RebuildRequest{
		Topic:      topic,
		Date:       date,
		Dataset:    dataset,
		Bucket:     bucket,
		ClearGraph: clearGraph,
	})
	if res.Topics == nil && res.Base.IsOK() {
		logger.Get().Info("Topic step skipped, no clustering output", zap.String("topic", topic))
	}
	return report(cmd.OutOrStdout(), res.Status(), res)
}

func requireScope() error {
	if topic == "" || date == "" {
		return fmt.Errorf("--topic and --date are required")
	}
	return nil
}

// report prints v as indented JSON and fails only on an error status
func report(w io.Writer, status outcome.Status, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if status == outcome.StatusError {
		return fmt.Errorf("graph sync finished with status %s", status)
	}
	return nil
}
