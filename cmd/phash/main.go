package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/photocore/phashcore/internal/auth"
	"github.com/photocore/phashcore/internal/cache"
	"github.com/photocore/phashcore/internal/catalog"
	"github.com/photocore/phashcore/internal/config"
	"github.com/photocore/phashcore/internal/logger"
	"github.com/photocore/phashcore/internal/media"
	"github.com/photocore/phashcore/internal/phash"
	"github.com/photocore/phashcore/internal/scanner"
	"github.com/photocore/phashcore/internal/storage"
	"github.com/photocore/phashcore/internal/web"
	"github.com/photocore/phashcore/internal/web/handlers"
	"github.com/photocore/phashcore/internal/worker"
)

type Dependencies struct {
	ConfigPath string
	Config     *config.Config
}

func main() {
	deps := &Dependencies{}

	rootCmd := &cobra.Command{
		Use:           "phash",
		Short:         "Perceptual image hashing: fingerprints, distances and a hashing service.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if deps.ConfigPath == "" {
				deps.Config = config.Default()
				return nil
			}
			cfg, err := config.Load(deps.ConfigPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			deps.Config = cfg
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&deps.ConfigPath, "config", "", "Path to YAML config (defaults are used when empty)")

	rootCmd.AddCommand(cmdHash(deps))
	rootCmd.AddCommand(cmdCompare(deps))
	rootCmd.AddCommand(cmdHamming())
	rootCmd.AddCommand(cmdScan(deps))
	rootCmd.AddCommand(cmdServe(deps))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.ErrorLog.Error(err)
		os.Exit(1)
	}
}

func newHasher(cfg *config.Config) *phash.Hasher {
	return phash.New(media.NewPreprocessor(), cfg.HashOptions())
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdHash(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "hash FILE...",
		Short: "Print the perceptual hash of each image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hasher := newHasher(deps.Config)
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				hash, err := hasher.ComputeHash(cmd.Context(), data)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Printf("%s\t%s\n", hash, path)
			}
			return nil
		},
	}
}

func cmdCompare(deps *Dependencies) *cobra.Command {
	var humanize bool

	cmd := &cobra.Command{
		Use:   "compare IMAGE_A IMAGE_B",
		Short: "Compute the Hamming distance between two images",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			imageA, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			imageB, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}

			result, err := newHasher(deps.Config).Distance(cmd.Context(), imageA, imageB, humanize)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().BoolVar(&humanize, "humanize", false, "Report a similarity category instead of the number")

	return cmd
}

func cmdHamming() *cobra.Command {
	var humanize bool

	cmd := &cobra.Command{
		Use:   "hamming HASH_A HASH_B",
		Short: "Compute the Hamming distance between two hash strings",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := phash.CompareHashes(args[0], args[1], humanize)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().BoolVar(&humanize, "humanize", false, "Report a similarity category instead of the number")

	return cmd
}

// stack — собранные компоненты сервиса
type stack struct {
	store   *storage.Store
	cache   *cache.HashCache
	catalog *catalog.Catalog
	pool    *worker.Pool
	hashing *worker.HashService
	scanner *scanner.Scanner
}

func openStack(cfg *config.Config) (*stack, error) {
	if err := logger.Init(cfg.Storage.LogsPath); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	store, err := storage.NewStore(cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}

	s := &stack{store: store}
	s.cache = cache.NewHashCache(cfg.Cache.TTL, cfg.Cache.MaxItems)
	s.catalog = catalog.New(newHasher(cfg), store, s.cache)
	s.pool = worker.NewPool(cfg.Scan.Workers, cfg.Scan.QueueSize)
	s.hashing = worker.NewHashService(s.pool, s.catalog)
	s.scanner = scanner.NewScanner(cfg, s.catalog, s.hashing)
	s.pool.OnResult(s.scanner.HandleResult)
	s.pool.Start()

	logger.InfoLog.Infof("Hash format %s, database %s", s.catalog.Signature(), cfg.Storage.DBPath)
	return s, nil
}

func (s *stack) Close() {
	s.scanner.Stop()
	s.scanner.Wait()
	s.pool.Stop()
	s.cache.Stop()
	if err := s.store.Close(); err != nil {
		logger.ErrorLog.Errorf("Error closing database: %v", err)
	}
	logger.Cleanup()
}

func cmdScan(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Hash every new or changed image under the configured media paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStack(deps.Config)
			if err != nil {
				return err
			}
			defer s.Close()

			progress, err := s.scanner.Run(cmd.Context())
			if err != nil {
				return err
			}
			s.pool.Wait()

			if err := printJSON(progress); err != nil {
				return err
			}
			return printJSON(s.pool.Stats())
		},
	}
}

func cmdServe(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := deps.Config

			s, err := openStack(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if cfg.Scan.Watch {
				watcher, err := scanner.NewWatcher(cfg, s.hashing)
				if err != nil {
					return fmt.Errorf("failed to create watcher: %w", err)
				}
				if err := watcher.Start(); err != nil {
					return err
				}
				defer watcher.Stop()
			}

			authService, err := auth.NewAuth(cfg)
			if err != nil {
				return err
			}

			h := handlers.NewHandlers(cfg, s.catalog, s.store, s.scanner, s.cache, s.pool)
			server := web.NewServer(cfg, h, authService)

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			logger.InfoLog.Info("Shutting down...")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(ctx)
		},
	}
}
