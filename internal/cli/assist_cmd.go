package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillhq/quill/internal/assist"
	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/llm"
	"github.com/quillhq/quill/internal/research"
	"github.com/quillhq/quill/internal/store"
	"github.com/quillhq/quill/internal/stream"
)

// newAssistCmd runs a single assistant action from the terminal, reading the
// content from stdin. Useful for trying prompts without the editor attached.
func newAssistCmd() *cobra.Command {
	var (
		topic    string
		maxWords int
	)

	cmd := &cobra.Command{
		Use:   "assist <action>",
		Short: "Run one assistant action against stdin",
		Long: "Runs a single assistant action (improve, grammar, style, summarize, expand, " +
			"brainstorm, research) and prints the result. Content is read from stdin; " +
			"research and brainstorm take --topic instead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			registry := llm.NewRegistryFromConfig(cfg.Provider, log)
			if len(registry.List()) == 0 {
				return fmt.Errorf("no generation provider configured (set provider.name to claude or ollama)")
			}

			params := assist.Params{Topic: topic, MaxWords: maxWords}
			if topic == "" {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				params.Content = string(data)
			}

			fetchTimeout := time.Duration(cfg.Research.FetchTimeoutSeconds) * time.Second
			pool := research.NewHTTPSessionPool(cfg.Research.PoolSize, fetchTimeout, log)

			hub := stream.NewHub(log)
			disp := assist.NewDispatcher(store.NewMemoryContextStore(), registry, hub, pool,
				cfg.Agents, cfg.Research, log)

			res, err := disp.Dispatch(context.Background(), assist.Request{
				ActionType: args[0],
				Params:     params,
			})
			if err != nil {
				return err
			}

			fmt.Println(res.Content)
			return nil
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "topic for brainstorm/research actions")
	cmd.Flags().IntVar(&maxWords, "max-words", 0, "word limit for summarize")

	return cmd
}
