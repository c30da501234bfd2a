package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/newsstream/internal/model"
)

var rescrapeURL string

var rescrapeCmd = &cobra.Command{
	Use:   "rescrape",
	Short: "Reset one stored article and extract its text again",
	RunE: func(cmd *cobra.Command, args []string) error {
		if rescrapeURL == "" {
			return eris.New("--url is required")
		}

		env, err := initPipeline(cmd.Context(), "rescrape", passFlags{})
		if err != nil {
			return err
		}
		defer env.Close()

		o, err := env.Pipeline.Rescrape(cmd.Context(), rescrapeURL)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s %s", o.Status, o.URL)
		if o.Reason != "" {
			fmt.Fprintf(cmd.OutOrStdout(), ": %s", o.Reason)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		if o.Status == model.OutcomeFailed {
			return eris.Errorf("rescrape failed for %s", o.URL)
		}
		return nil
	},
}

func init() {
	rescrapeCmd.Flags().StringVar(&rescrapeURL, "url", "", "article URL to rescrape")
	rootCmd.AddCommand(rescrapeCmd)
}
