package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"quill/internal/fileutil"
	"quill/internal/reporting"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var send bool
	var to string
	var htmlPath string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Preview or send the weekly report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(runCtx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				var (
					summary reporting.Summary
					err     error
				)
				if send {
					summary, err = a.reporter.Send(runCtx, strings.TrimSpace(to))
				} else {
					summary, err = a.reporter.Preview(runCtx)
				}
				if err != nil {
					return err
				}
				fmt.Fprint(out, reporting.Text(summary))

				if target := strings.TrimSpace(htmlPath); target != "" {
					html, err := reporting.HTML(summary)
					if err != nil {
						return err
					}
					if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
						return fmt.Errorf("create report directory: %w", err)
					}
					if err := fileutil.WriteFileAtomic(target, []byte(html), 0o644); err != nil {
						return fmt.Errorf("write report: %w", err)
					}
					fmt.Fprintf(out, "HTML report written to %s\n", target)
				}
				if send {
					recipient := strings.TrimSpace(to)
					if recipient == "" {
						recipient = a.cfg.Reporting.Recipient
					}
					fmt.Fprintf(out, "Report sent to %s\n", recipient)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&send, "send", false, "Deliver the report by email")
	cmd.Flags().StringVar(&to, "to", "", "Recipient address (defaults to reporting.recipient)")
	cmd.Flags().StringVar(&htmlPath, "html", "", "Also write the HTML rendering to this path")
	return cmd
}
