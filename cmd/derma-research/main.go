package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mikeboe/derma-research/pkg/clients"
	"github.com/mikeboe/derma-research/pkg/config"
	"github.com/mikeboe/derma-research/pkg/diagnosis"
	"github.com/mikeboe/derma-research/pkg/logging"
	"github.com/mikeboe/derma-research/pkg/research"
)

var (
	topic    string
	label    string
	maxLoops int
	modelID  string
)

func main() {
	// A missing .env is fine as long as the variables are exported.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "derma-research",
		Short: "Research treatment options for skin lesions",
	}

	researchCmd := &cobra.Command{
		Use:   "research",
		Short: "Run one research loop and print the report",
		Long: `Runs the query/search/summarize/reflect loop against the configured
LLM and search providers. Pass a free-form --topic, or a lesion --label
(full name or short code such as "mel") to research treatment for it.`,
		RunE: runResearch,
	}
	researchCmd.Flags().StringVarP(&topic, "topic", "t", "", "The research topic")
	researchCmd.Flags().StringVarP(&label, "label", "l", "", "Lesion label or code, e.g. mel")
	researchCmd.Flags().IntVar(&maxLoops, "max-loops", 0, "Override MAX_WEB_RESEARCH_LOOPS")
	researchCmd.Flags().StringVar(&modelID, "model", "", "Override MODEL_ID")
	researchCmd.MarkFlagsMutuallyExclusive("topic", "label")

	labelsCmd := &cobra.Command{
		Use:   "labels",
		Short: "List the lesion labels accepted by --label",
		Run: func(cmd *cobra.Command, args []string) {
			for _, l := range diagnosis.Labels {
				fmt.Fprintf(cmd.OutOrStdout(), "%-6s %s\n", l.Code(), l)
			}
		},
	}

	rootCmd.AddCommand(researchCmd, labelsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runResearch(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	researchTopic, err := resolveTopic()
	if err != nil {
		return err
	}

	var overrides research.LoopOverrides
	if cmd.Flags().Changed("max-loops") {
		overrides.MaxLoops = &maxLoops
	}
	if modelID != "" {
		overrides.ModelID = &modelID
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if cfg.ResearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ResearchTimeout)
		defer cancel()
	}

	engine, err := clients.NewResearchEngine(ctx, cfg, logger, overrides)
	if err != nil {
		return err
	}

	report, err := engine.Run(ctx, researchTopic)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), report)
	return nil
}

func resolveTopic() (string, error) {
	switch {
	case topic != "":
		return topic, nil
	case label != "":
		l, ok := diagnosis.ParseLabel(label)
		if !ok {
			return "", fmt.Errorf("unknown lesion label %q, see `derma-research labels`", label)
		}
		return diagnosis.BuildTopic(string(l)), nil
	default:
		return "", errors.New("either --topic or --label is required")
	}
}
