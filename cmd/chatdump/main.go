package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matheus3301/chatdump/internal/config"
	"github.com/matheus3301/chatdump/internal/paths"
)

type rootOptions struct {
	configPath string
	debug      bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "chatdump",
		Short:         "Download chat history into resumable JSON archives",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", paths.ConfigPath(), "config file (.yaml or .toml)")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "log at debug level")

	rootCmd.AddCommand(
		newDownloadCommand(opts),
		newConvertCommand(opts),
		newStopCommand(opts),
		newConfigCommand(opts),
	)
	return rootCmd
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.LoadOrDefault(o.configPath)
}

// applyPreset sets every preset argument the user did not pass explicitly.
func applyPreset(cmd *cobra.Command, cfg *config.Config, name string) error {
	if name == "" {
		return nil
	}
	p, ok := cfg.Preset(name)
	if !ok {
		return fmt.Errorf("unknown preset %q", name)
	}
	for flag, value := range p.Args {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			return fmt.Errorf("preset %q: unknown flag --%s", name, flag)
		}
		if f.Changed {
			continue
		}
		if err := cmd.Flags().Set(flag, value); err != nil {
			return fmt.Errorf("preset %q: --%s: %w", name, flag, err)
		}
	}
	return nil
}
