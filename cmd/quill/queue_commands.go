package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"quill/internal/config"
	"quill/internal/keywords"
	"quill/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the work queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueSkipCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueImportCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items in selection order",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(listStatuses)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				items, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				writeTable(out,
					[]string{"ID", "Pri", "Keyword", "Status", "Verdict", "Slug", "Created"},
					buildQueueListRows(out, items),
					1,
				)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func parseStatuses(values []string) ([]queue.Status, error) {
	var statuses []queue.Status
	for _, value := range values {
		status, ok := queue.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func buildQueueListRows(w io.Writer, items []*queue.Item) [][]string {
	p := newPainter(w)
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			shortID(item.ID),
			strconv.Itoa(item.Priority),
			item.Keyword,
			p.status(item.Status),
			orDash(string(item.Verdict)),
			orDash(item.Slug),
			formatTime(item.CreatedAt),
		})
	}
	return rows
}

// findItem resolves an id, slug or keyword to an item.
func findItem(ctx context.Context, store *queue.Store, ref string) (*queue.Item, error) {
	ref = strings.TrimSpace(ref)
	lookups := []func(context.Context, string) (*queue.Item, error){
		store.Get,
		store.FindBySlug,
		store.FindByKeyword,
	}
	for _, lookup := range lookups {
		item, err := lookup(ctx, ref)
		if err != nil {
			return nil, err
		}
		if item != nil {
			return item, nil
		}
	}
	return nil, fmt.Errorf("no queue item matches %q", ref)
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|slug|keyword>",
		Short: "Show one queue item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				item, err := findItem(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				renderItem(cmd.OutOrStdout(), item)
				return nil
			})
		},
	}
}

func renderItem(w io.Writer, item *queue.Item) {
	p := newPainter(w)
	fields := [][2]string{
		{"ID", item.ID},
		{"Keyword", item.Keyword},
		{"Title", orDash(item.Title)},
		{"Template", orDash(item.Template)},
		{"Category", orDash(item.Category)},
		{"Priority", strconv.Itoa(item.Priority)},
		{"Status", p.status(item.Status)},
		{"Validated", yesNo(item.Validated)},
		{"Verdict", orDash(string(item.Verdict))},
		{"Rationale", orDash(item.Rationale)},
		{"Slug", orDash(item.Slug)},
		{"Created", formatTime(item.CreatedAt)},
		{"Started", formatTime(item.StartedAt)},
		{"Finished", formatTime(item.FinishedAt)},
		{"Duration", strconv.FormatFloat(item.DurationSeconds, 'f', 1, 64) + "s"},
		{"Error", orDash(item.ErrorMessage)},
		{"Version", strconv.FormatInt(item.Version, 10)},
	}
	for _, field := range fields {
		fmt.Fprintf(w, "%-10s %s\n", field[0]+":", field[1])
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Reset failed items to queued (all failed items when no id is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				count, err := store.RetryFailed(cmd.Context(), args...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if count == 0 {
					fmt.Fprintln(out, "No failed items to retry")
					return nil
				}
				fmt.Fprintf(out, "Reset %d item(s) to queued\n", count)
				return nil
			})
		},
	}
}

func newQueueSkipCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "skip <id...>",
		Short: "Mark queued items as skipped",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				count, err := store.Skip(cmd.Context(), args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Skipped %d item(s)\n", count)
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id...>",
		Short: "Delete items from the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				count, err := store.Remove(cmd.Context(), args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d item(s)\n", count)
				return nil
			})
		},
	}
}

func newQueueImportCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var startPriority int

	cmd := &cobra.Command{
		Use:   "import <file.yaml|file.csv>",
		Short: "Import a keyword backlog into the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := keywords.LoadFile(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				result, err := keywords.Import(cmd.Context(), store, entries, keywords.Options{
					DryRun:        dryRun,
					StartPriority: startPriority,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				verb := "Imported"
				if dryRun {
					verb = "Would import"
				}
				fmt.Fprintf(out, "%s %d keyword(s), skipped %d\n", verb, len(result.Added), len(result.Skipped))
				if len(result.Added) > 0 {
					rows := make([][]string, 0, len(result.Added))
					for _, item := range result.Added {
						rows = append(rows, []string{
							item.Keyword,
							strconv.Itoa(item.Priority),
							orDash(item.Template),
							orDash(string(item.Verdict)),
						})
					}
					writeTable(out, []string{"Keyword", "Pri", "Template", "Verdict"}, rows, 1)
				}
				for _, skip := range result.Skipped {
					fmt.Fprintf(out, "  line %d: %s (%s)\n", skip.Line, orDash(skip.Keyword), skip.Reason)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be imported without writing")
	cmd.Flags().IntVar(&startPriority, "start-priority", 0, "Priority assigned to the first row without one")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the queue database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				health, err := store.CheckHealth(cmd.Context())
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Database:   %s\n", health.DBPath)
				fmt.Fprintf(out, "Exists:     %s\n", yesNo(health.DatabaseExists))
				fmt.Fprintf(out, "Readable:   %s\n", yesNo(health.DatabaseReadable))
				fmt.Fprintf(out, "Schema:     v%d (complete: %s)\n", health.SchemaVersion, yesNo(health.SchemaComplete()))
				fmt.Fprintf(out, "Integrity:  %s\n", yesNo(health.IntegrityCheck))
				fmt.Fprintf(out, "Total:      %d\n", health.TotalItems)
				if len(health.MissingTables) > 0 {
					fmt.Fprintf(out, "Tables:     missing %s\n", strings.Join(health.MissingTables, ", "))
				}
				if len(health.MissingColumns) > 0 {
					fmt.Fprintf(out, "Columns:    missing %s\n", strings.Join(health.MissingColumns, ", "))
				}
				if health.Error != "" {
					fmt.Fprintf(out, "Error:      %s\n", health.Error)
				}
				if err != nil {
					return err
				}
				if !health.IntegrityCheck {
					return errors.New("queue database failed its integrity check")
				}
				if !health.SchemaComplete() {
					return errors.New("queue database schema is incomplete")
				}
				return nil
			})
		},
	}
}
