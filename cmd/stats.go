package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/newsstream/internal/api"
	"github.com/sells-group/newsstream/internal/model"
	"github.com/sells-group/newsstream/internal/store"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print category and sentiment breakdowns of clean articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("stats"); err != nil {
			return err
		}

		st, err := initStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return printStats(cmd.Context(), cmd.OutOrStdout(), st, statsFilter(cfg), statsJSON)
	},
}

type statsView struct {
	Categories []model.CountBucket `json:"categories"`
	Sentiments []model.CountBucket `json:"sentiments"`
}

func printStats(ctx context.Context, w io.Writer, st api.StatsReader, f store.CleanFilter, asJSON bool) error {
	cats, err := st.CategoryBreakdown(ctx, f)
	if err != nil {
		return err
	}
	sents, err := st.SentimentBreakdown(ctx, f)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(statsView{Categories: cats, Sentiments: sents})
	}

	fmt.Fprintln(w, "Category")
	for _, b := range cats {
		fmt.Fprintf(w, "  %-16s %d\n", b.Key, b.Count)
	}
	fmt.Fprintln(w, "Sentiment")
	for _, b := range sents {
		fmt.Fprintf(w, "  %-16s %d\n", b.Key, b.Count)
	}
	return nil
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print as JSON")
	rootCmd.AddCommand(statsCmd)
}
