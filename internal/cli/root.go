// Package cli implements the panelcast command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/apresai/panelcast/internal/config"
	"github.com/apresai/panelcast/internal/llm"
	"github.com/apresai/panelcast/internal/observability"
	"github.com/apresai/panelcast/internal/tts"
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:           "panelcast",
	Short:         "Generate three-voice panel episodes from session data",
	SilenceUsage:  true,
	SilenceErrors: false,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "panelcast %s\n", Version)
	},
}

var listVoicesCmd = &cobra.Command{
	Use:   "list-voices",
	Short: "List available voices for all TTS providers",
	RunE:  runListVoices,
}

// Flags shared by every command that builds providers.
var (
	flagModel        string
	flagModelID      string
	flagTTS          string
	flagVoiceHost    string
	flagVoiceAdvisor string
	flagVoiceAnalyst string
	flagVerbose      bool
)

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(listVoicesCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagModel, "model", "m", "", "Model provider: "+strings.Join(llm.Providers, ", ")+" (env PANELCAST_MODEL)")
	pf.StringVar(&flagModelID, "model-id", "", "Provider model ID override (env PANELCAST_MODEL_ID)")
	pf.StringVarP(&flagTTS, "tts", "T", "", "TTS provider: "+strings.Join(tts.Providers, ", ")+" (env PANELCAST_TTS)")
	pf.StringVar(&flagVoiceHost, "voice-host", "", "Voice ID for the host")
	pf.StringVar(&flagVoiceAdvisor, "voice-advisor", "", "Voice ID for the advisor")
	pf.StringVar(&flagVoiceAnalyst, "voice-analyst", "", "Voice ID for the analyst")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Enable detailed JSON logging on stderr")
}

// Execute runs the root command with a context canceled on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig reads the environment and applies the shared flags on top.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	applyProviderFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, newLogger(flagVerbose), nil
}

func applyProviderFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = strings.TrimSpace(v)
		}
	}
	set("model", &cfg.ModelProvider, flagModel)
	set("model-id", &cfg.ModelID, flagModelID)
	set("tts", &cfg.TTSProvider, flagTTS)
	set("voice-host", &cfg.VoiceHost, flagVoiceHost)
	set("voice-advisor", &cfg.VoiceAdvisor, flagVoiceAdvisor)
	set("voice-analyst", &cfg.VoiceAnalyst, flagVoiceAnalyst)
}

// newLogger keeps the terminal quiet for the progress bar unless verbose.
func newLogger(verbose bool) *slog.Logger {
	if verbose {
		return observability.InitLogger(true)
	}
	logger := observability.NewLogger(os.Stderr, slog.LevelWarn)
	slog.SetDefault(logger)
	return logger
}

func runListVoices(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nAvailable voices:")

	for _, name := range tts.Providers {
		voices, err := tts.AvailableVoices(name)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "\n  %s\n", strings.ToUpper(name))
		fmt.Fprintf(out, "  %s\n", strings.Repeat("─", 50))
		fmt.Fprintf(out, "  %-28s %-12s %-8s %s\n", "ID", "NAME", "GENDER", "DESCRIPTION")
		for _, v := range voices {
			def := ""
			if v.DefaultFor != "" {
				def = fmt.Sprintf(" (default %s)", v.DefaultFor)
			}
			fmt.Fprintf(out, "  %-28s %-12s %-8s %s%s\n", v.ID, v.Name, v.Gender, v.Description, def)
		}
	}
	fmt.Fprintln(out)
	return nil
}
