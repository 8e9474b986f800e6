package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matheus3301/chatdump/internal/config"
	"github.com/matheus3301/chatdump/internal/engine"
)

func newStopCommand(root *rootOptions) *cobra.Command {
	var output, outputDir string
	cmd := &cobra.Command{
		Use:   "stop <chat>[,<chat>...]",
		Short: "Ask a running download to stop after its current batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if outputDir == "" {
				outputDir = cfg.Settings.OutputDir
			}
			chats := config.SplitList(args[0])
			if output != "" && len(chats) > 1 {
				return fmt.Errorf("--output names a single chat, got %d", len(chats))
			}
			for _, chat := range chats {
				layout := engine.Options{Chat: chat, Output: output, OutputDir: outputDir}.Layout()
				if err := os.WriteFile(layout.Stop(), nil, 0600); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stop requested: %s\n", layout.Stop())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file of the download")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "output directory of the download (default from config)")
	return cmd
}
