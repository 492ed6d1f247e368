package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hubenschmidt/postsearch/config"
	"github.com/hubenschmidt/postsearch/embedding"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and print the resolved provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := globalConfig
		provider, err := embedding.New(cfg.Embedding)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "provider:  %s\n", cfg.Embedding.Provider)
		fmt.Fprintf(out, "model:     %s\n", provider.ModelID())
		fmt.Fprintf(out, "dimension: %d\n", provider.Dimension())
		fmt.Fprintf(out, "metric:    %s (probes %d)\n", cfg.Metric(), cfg.Search.Probes)
		fmt.Fprintf(out, "database:  %s\n", redactDSN(cfg.DatabaseDSN))
		if cfg.Embedding.Provider == config.ProviderCohere && cfg.Embedding.Cohere.APIKey == "" {
			fmt.Fprintln(out, "warning:   COHERE_API_KEY is not set; every embedding call will fail")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
