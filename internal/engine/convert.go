package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/matheus3301/chatdump/internal/archive"
	"github.com/matheus3301/chatdump/internal/filter"
	"github.com/matheus3301/chatdump/internal/model"
	"github.com/matheus3301/chatdump/internal/paths"
	"github.com/matheus3301/chatdump/internal/render"
	"github.com/matheus3301/chatdump/internal/status"
	"github.com/matheus3301/chatdump/internal/thread"
	"github.com/matheus3301/chatdump/internal/writer"
)

// ConvertOptions configures a conversion of an existing archive.
type ConvertOptions struct {
	Input string
	// Output is the base path of the written files (default: next to Input).
	Output string
	// Chat overrides the chat id used for message links.
	Chat        string
	Filter      filter.Spec
	SubchatName string
	SampleLimit int
	Desc        bool
	Split       render.Period
}

// Convert loads a previous output or a Telegram Desktop export, filters
// it and renders the text files. A subchat root is resolved against the
// whole archive before the other filters apply.
func (e *Engine) Convert(ctx context.Context, opts ConvertOptions) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := opts.Filter.Validate(); err != nil {
		return nil, err
	}
	if _, err := render.ParsePeriod(string(opts.Split)); err != nil {
		return nil, err
	}
	if opts.SampleLimit == 0 {
		opts.SampleLimit = filter.DefaultSampleLimit
	}

	arc, err := archive.Load(opts.Input)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", opts.Input, err)
	}
	chat := opts.Chat
	if chat == "" {
		chat = arc.ChatID
	}
	log := e.logger.With(zap.String("input", opts.Input), zap.String("format", string(arc.Format)))

	corpus := arc.Messages
	model.SortByID(corpus, false)

	output := opts.Output
	if output == "" {
		output = strings.TrimSuffix(opts.Input, ".part.jsonl")
	}
	layout := paths.ForOutput(output)

	p := filter.NewPipeline(opts.Filter).WithSampleLimit(opts.SampleLimit)
	if root := opts.Filter.SubchatRoot; root != 0 {
		members, err := thread.NewIndex(corpus).Members(root)
		if err != nil {
			return nil, fmt.Errorf("subchat %d: %w", root, err)
		}
		p.WithMembers(members)
		layout = subchatLayout(layout, opts.SubchatName, root)
	}
	msgs := p.Apply(corpus)

	res := &Result{
		ChatID:    chat,
		Status:    status.Done,
		Messages:  len(msgs),
		Exhausted: true,
		Keywords:  keywordReports(chat, p.Stats(), msgs),
	}
	res.From, res.To = dateRange(msgs)

	if !samePath(layout.JSON(), opts.Input) {
		if err := writer.WriteOutput(layout.JSON(), msgs, opts.Desc); err != nil {
			return nil, err
		}
		res.ResultJSON = layout.JSON()
	}

	textOpts := render.TextOptions{Desc: opts.Desc, Names: arc.Names}
	if err := writeText(layout.Text(), msgs, textOpts); err != nil {
		return nil, err
	}
	res.ResultTxt = layout.Text()

	splits, err := writeSplits(layout, msgs, opts.Split, textOpts)
	if err != nil {
		return nil, err
	}
	res.ResultSplits = splits
	if opts.Filter.SubchatRoot != 0 {
		res.ResultSubchat = layout.JSON()
	}

	log.Info("archive converted",
		zap.Int("loaded", len(corpus)),
		zap.Int("kept", len(msgs)),
		zap.String("output", layout.Text()))
	return res, nil
}
