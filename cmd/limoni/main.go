package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"limoni/internal/archive"
	"limoni/internal/bot"
	"limoni/internal/config"
	"limoni/internal/export"
	"limoni/internal/metrics"
	"limoni/internal/parser"
	"limoni/internal/scraper"
	"limoni/internal/server"
	"limoni/internal/storage"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "limoni",
		Short:         "Archive Ekşi Sözlük entries into collections",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "./configs", "config directory or config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, reader view and Telegram bot",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	})
	root.AddCommand(newExportCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	if filepath.Ext(configPath) != "" {
		return config.LoadConfigFile(configPath)
	}
	return config.LoadConfig(configPath)
}

// app holds the components shared by every subcommand.
type app struct {
	cfg     config.Config
	log     *logrus.Logger
	repo    *storage.BadgerRepository
	metrics *metrics.Metrics
	svc     *archive.Service
}

func newApp() (*app, error) {
	// --- Configuration Loading ---
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}

	// --- Logger Setup ---
	log := cfg.NewLogger()
	log.SetOutput(os.Stdout)
	log.WithFields(logrus.Fields{
		"badgerdb_path": cfg.BadgerDBPath,
		"site":          cfg.SiteBaseURL,
	}).Info("Configuration loaded successfully")

	// --- Initialize Components ---
	repo, err := storage.NewBadgerRepository(cfg.BadgerDBPath, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	fetcher, err := scraper.NewCachingScraper(
		scraper.NewRodScraper(log, cfg.ScrapeTimeout),
		cfg.PageCacheMB, cfg.PageCacheTTL, log,
	)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to initialize page cache: %w", err)
	}

	p := parser.New(log)
	exp, err := export.New(p, time.Local)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to initialize exporter: %w", err)
	}

	m := metrics.New()
	svc := archive.NewService(repo, fetcher, p, exp, m, cfg.SiteBaseURL, log)

	return &app{cfg: cfg, log: log, repo: repo, metrics: m, svc: svc}, nil
}

func (a *app) close() {
	a.log.Info("Closing database...")
	if err := a.repo.Close(); err != nil {
		a.log.WithError(err).Error("Error closing database")
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	log := a.log

	// Create context that listens for interrupt signals
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if created, err := a.repo.EnsureDefaultCollection(ctx); err != nil {
		return fmt.Errorf("failed to prepare default collection: %w", err)
	} else if created {
		log.Info("Created default collection")
	}
	a.svc.RefreshGauges(ctx)

	go a.repo.RunGC(ctx, a.cfg.GCInterval)

	if a.cfg.TelegramBotToken != "" {
		botHandler, err := bot.NewHandler(a.cfg, a.svc, log)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram bot handler: %w", err)
		}
		go botHandler.Start(ctx)
	} else {
		log.Info("TELEGRAM_BOT_TOKEN not set, bot disabled")
	}

	log.Info("Starting limoni...")
	if a.cfg.HTTPAddr != "" {
		srv, err := server.New(a.svc, a.metrics, a.cfg.SiteBaseURL, log)
		if err != nil {
			return err
		}
		if err := srv.Start(ctx, a.cfg.HTTPAddr); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	} else {
		<-ctx.Done()
	}

	log.Info("limoni shut down gracefully.")
	return nil
}

func newExportCommand() *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export <collection id>",
		Short: "Write a collection as html, csv or json",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.svc.Export(context.Background(), args[0], f)
			if err != nil {
				return err
			}
			if out == "-" {
				_, err = cmd.OutOrStdout().Write(res.Data)
				return err
			}
			if out == "" {
				out = exportFileName(res.Filename)
			}
			if err := os.WriteFile(out, res.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			a.log.WithField("file", out).Info("Collection exported")
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "html, csv or json")
	cmd.Flags().StringVarP(&out, "out", "o", "", `output file, "-" for stdout (default "<collection name>.<format>")`)
	return cmd
}

var pathSeparators = strings.NewReplacer("/", "_", "\\", "_")

// exportFileName turns a collection's export name into a file in the
// working directory.
func exportFileName(name string) string {
	name = pathSeparators.Replace(name)
	if name == "" || strings.Trim(name, ".") == "" {
		return "collection"
	}
	return name
}
