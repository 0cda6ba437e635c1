package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-riddler/internal/application"
	"github.com/ahrav/go-riddler/internal/domain"
)

const (
	checkPrompt      = "Reply with the word OK."
	checkConcurrency = 4
)

func newCheckCmd(global *globalOptions) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Send one short request to every participant's backend",
		Long: `check loads the configuration and sends a one-line prompt to each
participant. It exits non-zero if any backend is unreachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd.Context(), configPath, cmd.InOrStdin(), cmd.OutOrStdout(), global.logger)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "tournament configuration file, or - for stdin")
	return cmd
}

type checkResult struct {
	id, model string
	reply     string
	latency   time.Duration
	err       error
}

func runCheck(ctx context.Context, configPath string, in io.Reader, out io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := loadConfig(configPath, in, 0, "")
	if err != nil {
		return err
	}

	// A check should see a backend's first answer, not a retried one.
	llmCfg := cfg.LLM
	llmCfg.MaxRetries = 0
	llmCfg.CircuitBreaker.MaxFailures = 0
	llmCfg.Budget = application.BudgetConfig{}
	registry, err := buildRegistry(llmCfg, nil, nil)
	if err != nil {
		return &domain.ConfigurationError{Err: err}
	}

	results := make([]checkResult, len(cfg.Participants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(checkConcurrency)

	for i, p := range cfg.Participants {
		g.Go(func() error {
			res := checkResult{id: p.ID, model: p.Model}
			defer func() { results[i] = res }()

			client, err := registry.GetClient(p.Model)
			if err != nil {
				res.err = err
				return nil
			}
			start := time.Now()
			reply, err := client.Complete(gctx, checkPrompt, map[string]any{
				"max_tokens":  10,
				"temperature": 0.0,
			})
			res.latency = time.Since(start)
			res.reply = strings.TrimSpace(reply)
			res.err = err
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			logger.Debug("backend unreachable", "participant", r.id, "model", r.model, "error", r.err)
			fmt.Fprintf(out, "FAIL  %-20s %-40s %v\n", r.id, r.model, r.err)
			continue
		}
		fmt.Fprintf(out, "ok    %-20s %-40s %6dms  %q\n", r.id, r.model, r.latency.Milliseconds(), r.reply)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d participants unreachable", failed, len(results))
	}
	return nil
}
