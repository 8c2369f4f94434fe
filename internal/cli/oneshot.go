package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apresai/panelcast/internal/app"
	"github.com/apresai/panelcast/internal/assembly"
	"github.com/apresai/panelcast/internal/llm"
	"github.com/apresai/panelcast/internal/persona"
	"github.com/apresai/panelcast/internal/polish"
	"github.com/apresai/panelcast/internal/ssml"
)

var completeCmd = &cobra.Command{
	Use:   "complete [user prompt]",
	Short: "Run one guarded model completion",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runComplete,
}

var renderCmd = &cobra.Command{
	Use:   "render [text]",
	Short: "Render one line as speech in a persona's voice",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRender,
}

var (
	flagSystem      string
	flagUser        string
	flagMaxTokens   int
	flagTemperature float64

	flagRenderText   string
	flagRenderVoice  string
	flagRenderOutput string
)

func init() {
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(renderCmd)

	cf := completeCmd.Flags()
	cf.StringVar(&flagSystem, "system", "", "System instruction (default: the advisor's)")
	cf.StringVarP(&flagUser, "user", "u", "", "User prompt")
	cf.IntVar(&flagMaxTokens, "max-tokens", 150, "Maximum output tokens")
	cf.Float64Var(&flagTemperature, "temperature", 0.45, "Sampling temperature (0-1)")

	rf := renderCmd.Flags()
	rf.StringVar(&flagRenderText, "text", "", "Text to speak")
	rf.StringVar(&flagRenderVoice, "voice", string(persona.Host), "Persona voice: host, advisor, analyst")
	rf.StringVarP(&flagRenderOutput, "output", "o", "line.wav", "Output WAV path")
}

func runComplete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	user := firstNonEmpty(flagUser, args...)
	if user == "" {
		return errors.New("a user prompt is required (argument or --user)")
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	system := flagSystem
	if system == "" {
		system = a.Orchestrator.Cast().Advisor.SystemInstruction()
	}
	text, err := a.Completer.Complete(ctx, llm.Request{
		System:      system,
		User:        user,
		MaxTokens:   flagMaxTokens,
		Temperature: flagTemperature,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

func runRender(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	text := firstNonEmpty(flagRenderText, args...)
	if text == "" {
		return errors.New("text is required (argument or --text)")
	}
	id, err := persona.ParseID(flagRenderVoice)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	dest, err := filepath.Abs(flagRenderOutput)
	if err != nil {
		return err
	}
	work, err := os.MkdirTemp("", "panelcast-render-*")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(work)

	p := a.Orchestrator.Cast().Get(id)
	markup := ssml.NewRenderer(polish.NewRand(cfg.Seed)).Render(text, p)
	asm := assembly.New(a.Provider, work, assembly.Options{
		CallTimeout: cfg.CallTimeout,
		OnFallback:  a.Metrics.SynthesisFallback,
		Logger:      logger,
	})
	seg, err := asm.Synthesize(ctx, 0, markup, a.Orchestrator.Voices().For(id))
	if err != nil {
		return err
	}
	res, err := asm.Concatenate(ctx, []assembly.Segment{seg}, dest)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%.1fs)\n", res.Path, res.Duration)
	return nil
}

func firstNonEmpty(flag string, args ...string) string {
	if s := strings.TrimSpace(flag); s != "" {
		return s
	}
	if len(args) > 0 {
		return strings.TrimSpace(args[0])
	}
	return ""
}
