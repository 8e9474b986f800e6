package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/matheus3301/chatdump/internal/app"
	"github.com/matheus3301/chatdump/internal/config"
	"github.com/matheus3301/chatdump/internal/engine"
)

func newDownloadCommand(root *rootOptions) *cobra.Command {
	var (
		flags       config.Flags
		preset      string
		resultsJSON bool
	)
	cmd := &cobra.Command{
		Use:   "download <chat>[,<chat>...]",
		Short: "Download or resume the history of one or more chats",
		Long: `Download fetches a chat's history in batches and appends it to
<output>.part.jsonl, recording a checkpoint after every flush. Running the
same command again resumes after the last stored message. Create
<output>.stop (or press Ctrl-C) to stop cleanly at the next batch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if err := applyPreset(cmd, cfg, preset); err != nil {
				return err
			}
			flags.Chats = args[0]
			runs, err := cfg.Settings.Resolve(flags, time.Now())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var results []*engine.Result
			runErr := withEngine(root, cfg.Settings, "download", func(eng *engine.Engine) error {
				var err error
				results, err = eng.DownloadAll(ctx, runs)
				return err
			})
			if resultsJSON {
				if err := printJSON(cmd, results); err != nil {
					return err
				}
			} else {
				printSummary(cmd, results)
			}
			return runErr
		},
	}

	fs := cmd.Flags()
	addFilterFlags(fs, &flags)
	fs.StringVar(&flags.OutputDir, "output-dir", "", "directory for per-chat outputs (default from config)")
	fs.IntVarP(&flags.Limit, "limit", "l", 0, "stop after this many new messages (0 = no limit)")
	fs.Int64Var(&flags.SinceID, "since-id", 0, "start after this message id when there is no checkpoint")
	fs.BoolVar(&flags.Overwrite, "overwrite", false, "discard existing output and checkpoint")
	fs.BoolVar(&flags.Media, "media", false, "download attachments after the history")
	fs.IntVar(&flags.BatchSize, "batch-size", 0, "messages per request (default from config)")
	fs.IntVar(&flags.Concurrency, "concurrency", 0, "parallel attachment downloads (default from config)")
	fs.BoolVar(&flags.Backward, "backward", false, "walk history from newest to oldest")
	fs.StringVar(&preset, "preset", "", "apply a named flag preset from the config")
	fs.BoolVar(&resultsJSON, "results-json", false, "print the run summary as JSON on stdout")
	return cmd
}

// withEngine starts the fx application, hands its engine to fn and stops
// the application afterwards.
func withEngine(root *rootOptions, settings config.Settings, runName string, fn func(*engine.Engine) error) error {
	var eng *engine.Engine
	fxApp := fx.New(
		app.Module(app.Params{Settings: settings, RunName: runName, Debug: root.debug}),
		fx.Populate(&eng),
		fx.NopLogger,
	)
	if err := fxApp.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return err
	}
	runErr := fn(eng)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := fxApp.Stop(stopCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return runErr
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(cmd *cobra.Command, results []*engine.Result) {
	out := cmd.OutOrStdout()
	for _, r := range results {
		if r == nil {
			continue
		}
		fmt.Fprintf(out, "%s: %s, %d messages (%d new)", r.ChatID, strings.ToLower(string(r.Status)), r.Messages, r.NewMessages)
		if r.From != "" {
			fmt.Fprintf(out, ", %s .. %s", r.From, r.To)
		}
		fmt.Fprintln(out)
		if r.ResultJSON != "" {
			fmt.Fprintf(out, "  json: %s\n", r.ResultJSON)
		}
		if r.ResultTxt != "" {
			fmt.Fprintf(out, "  text: %s\n", r.ResultTxt)
		}
		if r.ResultSubchat != "" {
			fmt.Fprintf(out, "  subchat: %s\n", r.ResultSubchat)
		}
		if m := r.Media; m != nil {
			fmt.Fprintf(out, "  media: %d downloaded, %d skipped, %d failed\n", m.Downloaded, m.Skipped, m.Failed)
		}
		for _, kw := range r.Keywords {
			fmt.Fprintf(out, "  keyword %q: %d\n", kw.Text, kw.Count)
		}
		if r.Error != "" {
			fmt.Fprintf(out, "  error: %s\n", r.Error)
		}
	}
}
