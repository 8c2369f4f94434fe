package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apresai/panelcast/internal/app"
	"github.com/apresai/panelcast/internal/ingest"
	"github.com/apresai/panelcast/internal/progress"
	"github.com/apresai/panelcast/internal/session"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a panel episode from session context",
	Long: `Generate runs the full session: host introductions, the topic intro,
advisor/analyst exchanges and the closing line, then writes one WAV file and
a transcript. Context comes from --source (files, PDFs, URLs) and/or
--context. With neither on an interactive terminal, a setup wizard opens.`,
	RunE: runGenerate,
}

var (
	flagSources    []string
	flagContext    string
	flagContextDir string
	flagTurns      int
	flagOutputDir  string
	flagPrefix     string
	flagSeed       uint64
	flagTUI        bool
)

func init() {
	rootCmd.AddCommand(generateCmd)
	f := generateCmd.Flags()
	f.StringSliceVarP(&flagSources, "source", "s", nil, "Context source: JSON/text/PDF path or URL (repeatable)")
	f.StringVarP(&flagContext, "context", "c", "", "Inline session context")
	f.StringVar(&flagContextDir, "context-dir", ".", "Directory the wizard lists context files from")
	f.IntVarP(&flagTurns, "turns", "n", session.DefaultTurns, fmt.Sprintf("Advisor/analyst exchange pairs (%d-%d)", session.MinTurns, session.MaxTurns))
	f.StringVarP(&flagOutputDir, "output-dir", "o", "", "Directory for the episode and transcript (env PANELCAST_OUTPUT_DIR)")
	f.StringVarP(&flagPrefix, "prefix", "p", "", "Output file prefix (default "+session.DefaultPrefix+")")
	f.Uint64Var(&flagSeed, "seed", 0, "Seed for phrasing and prosody choices (0 = random)")
	f.BoolVarP(&flagTUI, "tui", "t", false, "Interactive setup wizard")
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("turns") {
		cfg.Turns = session.ClampTurns(flagTurns)
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir = flagOutputDir
	}
	if flags.Changed("prefix") {
		cfg.Prefix = flagPrefix
	}
	if flags.Changed("seed") {
		cfg.Seed = flagSeed
	}

	sources := flagSources
	noInput := len(sources) == 0 && strings.TrimSpace(flagContext) == ""
	if flagTUI || (noInput && progress.IsTerminal(os.Stdin)) {
		choice, err := runWizard(flagContextDir, cfg.Turns, cfg.TTSProvider)
		if err != nil {
			return err
		}
		sources = choice.Sources
		cfg.Turns = choice.Turns
		cfg.TTSProvider = choice.TTSProvider
	} else if noInput {
		return errors.New("either --source (-s) or --context (-c) is required")
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	text := flagContext
	if len(sources) > 0 {
		bundle, err := ingest.Load(ctx, sources, logger)
		if err != nil {
			return err
		}
		for _, skipped := range bundle.Skipped {
			fmt.Fprintf(cmd.ErrOrStderr(), "  Skipped unreadable source %s\n", skipped)
		}
		text = bundle.Context + text
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	req := session.Request{
		Context:   text,
		Turns:     cfg.Turns,
		OutputDir: cfg.OutputDir,
		Prefix:    cfg.Prefix,
	}
	if !flagVerbose {
		r := progress.NewBarRenderer(os.Stdout)
		defer r.Finish()
		req.Progress = r.Handle
	}

	sum, err := a.Orchestrator.Run(ctx, req)
	if err != nil {
		return err
	}
	if sum.Conflict != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %s was not writable; audio saved to %s\n", sum.Conflict.Requested, sum.Conflict.Used)
	}
	if flagVerbose {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", sum.AudioPath, sum.TranscriptPath)
	}
	return nil
}
