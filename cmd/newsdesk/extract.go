package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/c360studio/newsdesk/news"
)

type extractFlags struct {
	kind     string
	maxItems int
	publish  bool
}

// extractReport is what extract prints for one file.
type extractReport struct {
	File     string          `json:"file"`
	Stage    string          `json:"stage"`
	Articles []news.Article  `json:"articles"`
	Rejected []rejectedEntry `json:"rejected,omitempty"`
	Summary  *news.Summary   `json:"summary,omitempty"`
}

type rejectedEntry struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

func extractCmd(global *globalFlags) *cobra.Command {
	flags := &extractFlags{}

	cmd := &cobra.Command{
		Use:   "extract <glob>...",
		Short: "Salvage articles from saved model output",
		Long: `Extract runs the salvage cascade over files holding raw model output and
prints the recovered articles as JSON. Arguments are glob patterns and may use **.

With --publish the articles are upserted into the configured store.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := news.Kind(flags.kind)
			if !kind.IsValid() {
				return fmt.Errorf("unknown kind %q", flags.kind)
			}

			files, err := expandGlobs(args)
			if err != nil {
				return err
			}

			var publisher *news.Publisher
			if flags.publish {
				logger := newLogger(global.logLevel)
				cfg, err := loadConfig(global, logger)
				if err != nil {
					return err
				}
				app, err := NewApp(cmd.Context(), cfg, logger, nil)
				if err != nil {
					return err
				}
				defer app.Close(context.Background())
				publisher = app.Publisher()
			}

			return extractFiles(cmd.Context(), files, kind, flags.maxItems, publisher, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&flags.kind, "kind", string(news.KindNewsItem), "Article kind (news_item, tutorial)")
	cmd.Flags().IntVar(&flags.maxItems, "max-items", 0, "Keep at most this many articles per file (0 keeps all)")
	cmd.Flags().BoolVar(&flags.publish, "publish", false, "Upsert the articles into the configured store")

	return cmd
}

// expandGlobs resolves patterns to a sorted, de-duplicated file list.
func expandGlobs(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files match %v", patterns)
	}
	sort.Strings(files)
	return files, nil
}

func extractFiles(ctx context.Context, files []string, kind news.Kind, maxItems int, publisher *news.Publisher, out io.Writer) error {
	reports := make([]extractReport, 0, len(files))
	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}

		ext, err := news.Extract(kind, string(raw), maxItems)
		if err != nil {
			return err
		}

		report := extractReport{
			File:     file,
			Stage:    string(ext.Stage),
			Articles: ext.Articles,
		}
		if report.Articles == nil {
			report.Articles = []news.Article{}
		}
		for _, r := range ext.Rejected {
			report.Rejected = append(report.Rejected, rejectedEntry{Index: r.Index, Reason: r.Reason})
		}
		if publisher != nil && len(ext.Articles) > 0 {
			summary := publisher.Publish(ctx, ext.Articles, "")
			report.Summary = &summary
		}
		reports = append(reports, report)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}
