// Package main is the docchat CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/docchat/internal/cli"
	"github.com/hyperjump/docchat/internal/config"
	"github.com/hyperjump/docchat/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/docchat/config.yaml"
	defaultServerURL  = "http://localhost:8080"
	shutdownTimeout   = 10 * time.Second
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath string
	debug      bool
}

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory wins if it exists, so running from a project directory uses the project's config.
// A missing default config is not an error: defaults are used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
			if _, err := os.Stat(path); os.IsNotExist(err) {
				if err := config.LoadEnv(filepath.Join(cwd, ".env")); err != nil {
					return nil, "", err
				}
				cfg := &config.Config{}
				config.ApplyDefaults(cfg)
				return cfg, "", nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads the config and creates the logger.
func (o *rootOptions) setup() (*config.Config, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	debug := cfg.Debug || o.debug
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debug))
	return cfg, logger, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "docchat",
		Short:         "docchat - ask questions about your PDF documents",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(opts),
		newWorkerCmd(opts),
		newUploadCmd(opts),
		newAskCmd(opts),
		newDocumentsCmd(opts),
		newStatusCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "docchat version %s\n", version)
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		host      string
		port      int
		workers   int
		noWorkers bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server with embedded ingestion workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if host != "" {
				cfg.Server.Host = host
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			if workers > 0 {
				cfg.Worker.Concurrency = workers
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger, !noWorkers)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	cmd.Flags().IntVar(&workers, "workers", 0, "number of embedded ingestion workers (overrides config)")
	cmd.Flags().BoolVar(&noWorkers, "no-workers", false, "do not run ingestion workers in this process")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger, withWorkers bool) error {
	c, err := openComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.initRetrieval(ctx); err != nil {
		return err
	}
	if err := c.initChat(ctx); err != nil {
		return err
	}

	inbox := c.newInbox()
	srv := c.newServer(inbox)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})
	if withWorkers {
		pool := c.newPool(cfg.Worker.Concurrency)
		g.Go(func() error { return pool.Run(gctx) })
	}
	if inbox != nil {
		if err := inbox.Start(gctx); err != nil {
			logger.Warn("inbox not started", zap.Error(err))
		} else {
			defer inbox.Stop()
		}
	}
	return g.Wait()
}

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run ingestion workers without the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if workers > 0 {
				cfg.Worker.Concurrency = workers
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := openComponents(cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.initRetrieval(ctx); err != nil {
				return err
			}
			pool := c.newPool(cfg.Worker.Concurrency)
			logger.Info("workers started", zap.Int("workers", pool.Size()))
			return pool.Run(ctx)
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "number of ingestion workers (overrides config)")
	return cmd
}

func newUploadCmd(opts *rootOptions) *cobra.Command {
	var serverURL, output string
	cmd := &cobra.Command{
		Use:   "upload <file.pdf>",
		Short: "Upload a PDF and queue it for ingestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseFormat(output)
			if err != nil {
				return err
			}
			path := args[0]
			if serverURL != "" {
				resp, err := uploadViaHTTP(cmd.Context(), serverURL, path)
				if err != nil {
					return err
				}
				return cli.WriteUpload(cmd.OutOrStdout(), resp, format)
			}

			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			c, err := openComponents(cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			res, err := c.Uploads.Upload(cmd.Context(), filepath.Base(path), f)
			if err != nil {
				return err
			}
			return cli.WriteUpload(cmd.OutOrStdout(), uploadResponse(res), format)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", defaultServerURL, `server URL (empty = write to local storage and queue directly)`)
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var serverURL, output string
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask a question about the uploaded documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseFormat(output)
			if err != nil {
				return err
			}
			question := buildQuestion(args)
			if question == "" {
				return errors.New("question is empty")
			}
			if serverURL != "" {
				answer, err := askViaHTTP(cmd.Context(), serverURL, question)
				if err != nil {
					return err
				}
				return cli.WriteAnswer(cmd.OutOrStdout(), answer, format)
			}

			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			c, err := openComponents(cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.initRetrieval(cmd.Context()); err != nil {
				return err
			}
			if err := c.initChat(cmd.Context()); err != nil {
				return err
			}
			answer, err := c.Engine.Answer(cmd.Context(), question)
			if err != nil {
				return err
			}
			return cli.WriteAnswer(cmd.OutOrStdout(), answer, format)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", defaultServerURL, "server URL (empty = answer from local storage directly)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

func newDocumentsCmd(opts *rootOptions) *cobra.Command {
	var (
		serverURL, output string
		offset, limit     int
	)
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List uploaded documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseFormat(output)
			if err != nil {
				return err
			}
			if serverURL != "" {
				docs, err := documentsViaHTTP(cmd.Context(), serverURL, offset, limit)
				if err != nil {
					return err
				}
				return cli.WriteDocuments(cmd.OutOrStdout(), docs, format)
			}
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			c, err := openComponents(cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()
			docs, err := c.Storage.ListDocuments(cmd.Context(), offset, limit)
			if err != nil {
				return err
			}
			return cli.WriteDocuments(cmd.OutOrStdout(), docs, format)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", defaultServerURL, "server URL (empty = read local storage directly)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of documents to skip")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of documents")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var serverURL, output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show document, index and queue status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseFormat(output)
			if err != nil {
				return err
			}
			if serverURL != "" {
				status, err := statusViaHTTP(cmd.Context(), serverURL)
				if err != nil {
					return err
				}
				return cli.WriteStatus(cmd.OutOrStdout(), status, format)
			}
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			c, err := openComponents(cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.initIndexOnly(); err != nil {
				return err
			}
			status, err := c.newServer(nil).Status(cmd.Context())
			if err != nil {
				return err
			}
			return cli.WriteStatus(cmd.OutOrStdout(), status, format)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", defaultServerURL, "server URL (empty = read local storage directly)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

// buildQuestion joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
