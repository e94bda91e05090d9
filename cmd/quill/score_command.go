package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"quill/internal/config"
	"quill/internal/document"
	"quill/internal/fileutil"
	"quill/internal/quality"
	"quill/internal/queue"
)

type scoreTarget struct {
	label string
	path  string
	slug  string
	doc   document.Document
}

func newScoreCommand(ctx *commandContext) *cobra.Command {
	var all bool
	var update bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "score [file...]",
		Short: "Score documents against the quality rubric",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("pass one or more files, or --all")
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				library := document.NewLibrary(cfg.Paths.ContentDir)
				targets, err := collectScoreTargets(library, args, all)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(targets) == 0 {
					fmt.Fprintln(out, "No documents to score")
					return nil
				}
				rules := quality.RulesFromConfig(cfg)
				threshold := cfg.Quality.PublishThreshold
				p := newPainter(out)

				rows := make([][]string, 0, len(targets))
				for _, target := range targets {
					report := quality.Evaluate(target.doc, rules)
					verdict := p.paint("pass", text.FgGreen)
					if !quality.Passes(report, threshold) {
						verdict = p.paint("below", text.FgRed)
					}
					rows = append(rows, []string{
						target.label,
						strconv.Itoa(report.Score),
						verdict,
						strconv.Itoa(report.Stats.WordCount),
						strconv.Itoa(len(report.Issues)),
					})
					if verbose {
						printIssues(out, target.label, report)
					}
					if update {
						if err := writeScore(cmd, store, target, report.Score); err != nil {
							return err
						}
					}
				}
				writeTable(out, []string{"Document", "Score", "Gate", "Words", "Issues"}, rows, 1, 3, 4)
				fmt.Fprintf(out, "Publish threshold: %d\n", threshold)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Score every document in the content library")
	cmd.Flags().BoolVar(&update, "update", false, "Write the score back to the document header and tracker")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List every issue per document")
	return cmd
}

func collectScoreTargets(library *document.Library, paths []string, all bool) ([]scoreTarget, error) {
	var targets []scoreTarget
	if all {
		entries, err := library.All()
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			doc, err := document.LoadFile(entry.Path)
			if err != nil {
				return nil, err
			}
			targets = append(targets, scoreTarget{
				label: string(entry.Stage) + "/" + entry.Slug,
				path:  entry.Path,
				slug:  entry.Slug,
				doc:   doc,
			})
		}
		return targets, nil
	}
	for _, path := range paths {
		doc, err := document.LoadFile(path)
		if err != nil {
			return nil, err
		}
		targets = append(targets, scoreTarget{
			label: filepath.Base(path),
			path:  path,
			slug:  doc.Slug(),
			doc:   doc,
		})
	}
	return targets, nil
}

func printIssues(w io.Writer, label string, report quality.Report) {
	fmt.Fprintf(w, "%s: %d/%d points\n", label, report.Earned, report.Total)
	for _, issue := range report.Issues {
		fmt.Fprintf(w, "  [%s] %s: %s (-%d)\n", issue.Severity, issue.Check, issue.Message, issue.Lost)
	}
}

func writeScore(cmd *cobra.Command, store *queue.Store, target scoreTarget, score int) error {
	data, err := os.ReadFile(target.path)
	if err != nil {
		return fmt.Errorf("read %s: %w", target.path, err)
	}
	updated := document.UpdateHeader(string(data), document.HeaderFrom(document.KeySEOScore, int64(score)))
	if err := fileutil.WriteFileAtomic(target.path, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", target.path, err)
	}
	if target.slug == "" {
		return nil
	}
	_, err = store.UpsertTracked(cmd.Context(), target.slug, queue.TrackerPatch{Score: queue.IntPtr(score)})
	return err
}
