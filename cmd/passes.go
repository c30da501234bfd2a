package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/newsstream/internal/model"
	"github.com/sells-group/newsstream/internal/monitoring"
	"github.com/sells-group/newsstream/internal/pipeline"
)

var (
	passOpts passFlags
	runEvery time.Duration
)

// newPassCmd builds a command that runs one or more pipeline passes.
func newPassCmd(mode, short string, run func(ctx context.Context, p *pipeline.Pipeline) ([]*model.PassReport, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   mode,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			env, err := initPipeline(ctx, mode, passOpts)
			if err != nil {
				return err
			}
			defer env.Close()

			checker := monitoring.NewChecker(func(ctx context.Context) ([]*model.PassReport, error) {
				reports, err := run(ctx, env.Pipeline)
				printReports(cmd.OutOrStdout(), reports)
				return reports, err
			}, monitoring.NewAlerter(cfg.Monitoring), runEvery)

			if mode == "run" && runEvery > 0 {
				checker.Run(ctx)
				return nil
			}
			_, err = checker.Once(ctx)
			return err
		},
	}
	cmd.Flags().IntVar(&passOpts.limit, "limit", 0, "max articles per pass (0 = all pending)")
	cmd.Flags().IntVar(&passOpts.concurrency, "concurrency", 0, "parallel workers per pass (default from config)")
	return cmd
}

var collectCmd = newPassCmd("collect", "Fetch RSS feeds and store one stub per new article",
	func(ctx context.Context, p *pipeline.Pipeline) ([]*model.PassReport, error) {
		r, err := p.CollectPass(ctx)
		return compact(r), err
	})

var extractCmd = newPassCmd("extract", "Extract article text for stored stubs",
	func(ctx context.Context, p *pipeline.Pipeline) ([]*model.PassReport, error) {
		r, err := p.ExtractPass(ctx)
		return compact(r), err
	})

var enrichCmd = newPassCmd("enrich", "Summarize and label articles with text",
	func(ctx context.Context, p *pipeline.Pipeline) ([]*model.PassReport, error) {
		r, err := p.EnrichPass(ctx)
		return compact(r), err
	})

var runCmd = newPassCmd("run", "Run collect, extract and enrich in sequence",
	func(ctx context.Context, p *pipeline.Pipeline) ([]*model.PassReport, error) {
		r, err := p.Run(ctx)
		if r == nil {
			return nil, err
		}
		return compact(r.Collect, r.Extract, r.Enrich), err
	})

func compact(reports ...*model.PassReport) []*model.PassReport {
	out := make([]*model.PassReport, 0, len(reports))
	for _, r := range reports {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func printReports(w io.Writer, reports []*model.PassReport) {
	for _, r := range reports {
		fmt.Fprintf(w, "%-8s candidates=%d succeeded=%d skipped=%d failed=%d duration=%s\n",
			r.Pass, r.Candidates, r.Succeeded(), r.Skipped(), r.Failed(), r.Duration.Round(time.Millisecond))
		for _, o := range r.Outcomes {
			if o.Status == model.OutcomeFailed {
				fmt.Fprintf(w, "  failed %s: %s\n", o.URL, o.Reason)
			}
		}
	}
}

func init() {
	runCmd.Flags().DurationVar(&runEvery, "every", 0, "repeat the run on this interval until interrupted (0 = run once)")
	rootCmd.AddCommand(collectCmd, extractCmd, enrichCmd, runCmd)
}
