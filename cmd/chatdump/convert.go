package main

import (
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/matheus3301/chatdump/internal/config"
	"github.com/matheus3301/chatdump/internal/engine"
)

func newConvertCommand(root *rootOptions) *cobra.Command {
	var (
		flags       config.Flags
		resultsJSON bool
	)
	cmd := &cobra.Command{
		Use:   "convert <archive>",
		Short: "Filter and render an existing archive without fetching",
		Long: `Convert reads a previous chatdump output (.json or .part.jsonl) or a
Telegram Desktop result.json, applies the filters and writes the JSON and
text renderings next to it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			opts, err := flags.ConvertOptions(args[0], time.Now())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			var res *engine.Result
			err = withEngine(root, cfg.Settings, "convert", func(eng *engine.Engine) error {
				var err error
				res, err = eng.Convert(ctx, opts)
				return err
			})
			if err != nil {
				return err
			}
			if resultsJSON {
				return printJSON(cmd, res)
			}
			printSummary(cmd, []*engine.Result{res})
			return nil
		},
	}

	fs := cmd.Flags()
	addFilterFlags(fs, &flags)
	fs.StringVar(&flags.Chats, "chat", "", "chat id used in message links (default: from the archive)")
	fs.BoolVar(&resultsJSON, "results-json", false, "print the summary as JSON on stdout")
	return cmd
}
