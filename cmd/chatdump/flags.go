package main

import (
	"github.com/spf13/pflag"

	"github.com/matheus3301/chatdump/internal/config"
)

// addFilterFlags registers the flags shared by download and convert.
func addFilterFlags(fs *pflag.FlagSet, f *config.Flags) {
	fs.StringVarP(&f.Output, "output", "o", "", "output file (default: <output-dir>/<chat>.json)")
	fs.StringVar(&f.Users, "user", "", "comma separated sender ids (12345 or user12345)")
	fs.StringVar(&f.From, "from", "", "newest day to keep (YYYY-MM-DD)")
	fs.StringVar(&f.Until, "until", "", "oldest day to keep (YYYY-MM-DD)")
	fs.IntVar(&f.LastDays, "last-days", 0, "keep the last N days ending at --from or today")
	fs.StringVar(&f.Keywords, "keywords", "", "comma separated keywords, any match keeps a message")
	fs.StringVar(&f.Subchat, "subchat", "", "root message id or link of a reply thread to extract")
	fs.StringVar(&f.SubchatName, "subchat-name", "", "file name for the extracted thread")
	fs.StringVar(&f.Split, "split", "", "also write one file per month or year")
	fs.StringVar(&f.Sort, "sort", "asc", "text output order: asc or desc")
}
