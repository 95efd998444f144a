package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillhq/quill/internal/agent"
	"github.com/quillhq/quill/internal/assist"
	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/llm"
	"github.com/quillhq/quill/internal/research"
	"github.com/quillhq/quill/internal/server"
	"github.com/quillhq/quill/internal/store"
	"github.com/quillhq/quill/internal/stream"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the assistant server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}

			// Audit store (SQLite or in-memory)
			var contexts agent.ContextStore
			if cfg.Storage.Driver == "memory" {
				contexts = store.NewMemoryContextStore()
				log.Info().Msg("using in-memory audit store")
			} else {
				dbPath := paths.DatabasePath(cfg.Storage)
				db, err := store.Open(dbPath, log)
				if err != nil {
					return fmt.Errorf("opening database: %w", err)
				}
				defer db.Close()
				contexts = store.NewContextStore(db, log)
				log.Info().Str("path", dbPath).Msg("using SQLite audit store")
			}

			registry := llm.NewRegistryFromConfig(cfg.Provider, log)
			if len(registry.List()) == 0 {
				return fmt.Errorf("no generation provider configured (set provider.name to claude or ollama)")
			}

			fetchTimeout := time.Duration(cfg.Research.FetchTimeoutSeconds) * time.Second
			pool := research.NewHTTPSessionPool(cfg.Research.PoolSize, fetchTimeout, log)

			hub := stream.NewHub(log)
			disp := assist.NewDispatcher(contexts, registry, hub, pool, cfg.Agents, cfg.Research, log)

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := server.New(cfg, disp, hub, log)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}
