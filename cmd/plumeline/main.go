// Command plumeline runs the poultry question-answering service and provides
// operator subcommands against a local instance of the engine.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/plumeline/plumeline/config"
	"github.com/plumeline/plumeline/internal/app"
	"github.com/plumeline/plumeline/internal/logger"
	"github.com/plumeline/plumeline/internal/server"
	"github.com/plumeline/plumeline/models"
)

func main() {
	// A missing .env is fine; the environment may carry everything
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "plumeline",
		Short: "Poultry husbandry question-answering engine",
	}
	root.AddCommand(serveCmd(), askCmd(), expandCmd(), perfCmd(), healthCmd())

	if err := root.Execute(); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

// bootstrap loads config and assembles the engine for a command run
func bootstrap(ctx context.Context) (*app.Engine, *zap.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, nil, err
	}
	engine, cleanup, err := app.Bootstrap(ctx, cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return engine, log, func() {
		cleanup()
		_ = log.Sync()
	}, nil
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine, log, cleanup, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			srv := &http.Server{
				Addr:         addr,
				Handler:      server.New(engine, log).Handler(),
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			log.Info("listening", zap.String("addr", addr))

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func askCmd() *cobra.Command {
	var lang, conversation string
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question from the terminal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := engine.Ask(cmd.Context(), &models.Query{
				Text:           strings.Join(args, " "),
				Language:       lang,
				ConversationID: conversation,
			})
			if err != nil {
				return err
			}
			printAskResult(result)
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "question language (en, fr)")
	cmd.Flags().StringVar(&conversation, "conversation", "", "conversation id for follow-ups")
	return cmd
}

func expandCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expand [topic]",
		Short: "Search external sources for a topic and ingest the results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			topic := strings.Join(args, " ")
			bar := progressbar.NewOptions(-1,
				progressbar.OptionSetDescription("searching and ingesting"),
				progressbar.OptionSpinnerType(14),
				progressbar.OptionSetWriter(os.Stderr))
			done := make(chan struct{})
			go func() {
				ticker := time.NewTicker(100 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						_ = bar.Add(1)
					}
				}
			}()

			report, err := engine.ExpandKnowledge(cmd.Context(), topic)
			close(done)
			_ = bar.Finish()
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return err
			}

			color.Green("sources succeeded: %d", report.SourcesSucceeded)
			color.Green("documents ingested: %d", report.DocumentsIngested)
			return nil
		},
	}
	return cmd
}

func perfCmd() *cobra.Command {
	var line, sex string
	var age int
	var metrics []string
	cmd := &cobra.Command{
		Use:   "perf",
		Short: "Look up performance figures directly",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			q := models.PerfQuery{Line: line, Sex: sex, Metrics: metrics}
			if age > 0 {
				q.AgeDays = &age
			}

			result, err := engine.PerfLookup(cmd.Context(), q)
			if err != nil {
				return err
			}
			for _, row := range result.Rows {
				fmt.Printf("%-12s %-10s day %-3d %-30s %10.4g %s\n",
					row.Line, row.Sex, row.AgeDays, row.Metric, row.Value, row.Unit)
			}
			color.Cyan("confidence: %.2f", result.Confidence)
			return nil
		},
	}
	cmd.Flags().StringVar(&line, "line", "", "strain, e.g. ross_308")
	cmd.Flags().StringVar(&sex, "sex", "", "male, female or as_hatched")
	cmd.Flags().IntVar(&age, "age", 0, "age in days")
	cmd.Flags().StringSliceVar(&metrics, "metric", nil, "metric names")
	return cmd
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe every backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			report := engine.Health(cmd.Context())
			names := make([]string, 0, len(report.Components))
			for name := range report.Components {
				names = append(names, name)
			}
			sort.Strings(names)

			failed := false
			for _, name := range names {
				status := report.Components[name]
				if status == models.StatusOK {
					color.Green("%-14s %s", name, status)
				} else {
					color.Red("%-14s %s", name, status)
					failed = true
				}
			}
			if failed {
				return fmt.Errorf("one or more components are down")
			}
			return nil
		},
	}
}

func printAskResult(result *models.AskResult) {
	switch result.Type {
	case models.OutcomeAnswer:
		fmt.Println(result.Answer.Text)
		if len(result.Answer.Warnings) > 0 {
			fmt.Println()
			for _, warning := range result.Answer.Warnings {
				color.Yellow("! %s", warning)
			}
		}
		if len(result.Answer.Sources) > 0 {
			fmt.Println()
			color.Cyan("sources:")
			for _, src := range result.Answer.Sources {
				color.Cyan("  - %s", src)
			}
		}
		color.HiBlack("confidence %.2f, coherence %s", result.Answer.Confidence, result.Answer.Coherence)
	case models.OutcomeClarification:
		color.Yellow("I need a few details first:")
		for _, question := range result.Clarification.Questions {
			fmt.Println("  - " + question)
		}
	case models.OutcomeRejection:
		color.Red(result.Rejection.Message)
	}
}
