package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"ragd/internal/domain"
	"ragd/internal/server"
	"ragd/internal/tui"
)

func newServeCmd() *cobra.Command {
	var files []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			if len(files) > 0 {
				if err := a.ingest(cmd.Context(), files, false); err != nil {
					return err
				}
			}
			srv := server.New(a.svc, a.logger, a.cfg.Server.Debug)
			a.logger.WithField("addr", a.cfg.Server.Addr).Info("listening")
			return http.ListenAndServe(a.cfg.Server.Addr, srv.Router())
		},
	}
	cmd.Flags().StringSliceVarP(&files, "files", "f", nil, "glob patterns to ingest before serving")
	return cmd
}

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <pattern>...",
		Short: "Chunk and index documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			return a.ingest(cmd.Context(), args, true)
		},
	}
}

func (a *app) ingest(ctx context.Context, patterns []string, showProgress bool) error {
	docs, err := a.loader.FromFiles(patterns)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no documents matched %s", strings.Join(patterns, ", "))
	}

	// TF-IDF needs corpus statistics before anything can be embedded.
	if a.tfidf != nil {
		corpus := make([]string, len(docs))
		for i, d := range docs {
			corpus[i] = d.Content
		}
		if err := a.tfidf.Prepare(corpus); err != nil {
			return err
		}
	}

	var bar *progressbar.ProgressBar
	progress := func(done, total int) {
		if bar == nil {
			bar = progressbar.Default(int64(total), "indexing")
		}
		_ = bar.Set(done)
	}
	if !showProgress {
		progress = nil
	}

	result, err := a.svc.Ingest(ctx, docs, progress)
	if err != nil {
		return err
	}
	a.logger.WithField("chunks", result.ChunksAdded).Infof("ingested %d documents", result.Documents)
	for _, f := range result.Failures {
		a.logger.WithField("source", f.Source).Warnf("failed: %s", f.Err)
	}
	if len(result.Failures) > 0 {
		return fmt.Errorf("%d of %d documents failed", len(result.Failures), result.Documents)
	}
	return nil
}

func newQueryCmd() *cobra.Command {
	var files []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			if len(files) > 0 {
				if err := a.ingest(cmd.Context(), files, false); err != nil {
					return err
				}
			}

			question := strings.Join(args, " ")
			result, err := a.svc.Answer(cmd.Context(), question, a.queryOptions())
			if err != nil {
				return err
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(result)
			}
			fmt.Println(result.Answer)
			if len(result.Sources) > 0 {
				fmt.Printf("\nsources: %s (confidence %.2f)\n", strings.Join(result.Sources, ", "), result.Confidence)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&files, "files", "f", nil, "glob patterns to ingest first")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func newChatCmd() *cobra.Command {
	var files []string
	var plain bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat over the knowledge base",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			if len(files) > 0 {
				if err := a.ingest(cmd.Context(), files, false); err != nil {
					return err
				}
			}
			if plain {
				return a.chatPlain(cmd.Context())
			}
			model := tui.New(a.svc, a.queryOptions())
			_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
			return err
		},
	}
	cmd.Flags().StringSliceVarP(&files, "files", "f", nil, "glob patterns to ingest first")
	cmd.Flags().BoolVar(&plain, "plain", false, "line-based chat without the TUI")
	return cmd
}

// chatPlain is a readline loop for terminals where the TUI is unwanted.
func (a *app) chatPlain(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	var history []domain.ConversationTurn

	fmt.Println("Ask a question (Ctrl-D to quit).")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}

		result, err := a.svc.AnswerWithHistory(ctx, question, history, a.queryOptions())
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		fmt.Println(result.Answer)
		if len(result.Sources) > 0 {
			fmt.Printf("sources: %s\n", strings.Join(result.Sources, ", "))
		}
		history = append(history,
			domain.ConversationTurn{Role: "user", Content: question},
			domain.ConversationTurn{Role: "assistant", Content: result.Answer},
		)
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check collaborator reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			h := a.svc.HealthCheck(cmd.Context())
			out, err := json.MarshalIndent(h, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			if !h.OK() {
				return fmt.Errorf("one or more components unhealthy")
			}
			return nil
		},
	}
}
