package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"quill/internal/config"
	"quill/internal/document"
	"quill/internal/queue"
)

func newApproveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <slug>",
		Short: "Move a document held in review to approved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slug := strings.TrimSpace(args[0])
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				library := document.NewLibrary(cfg.Paths.ContentDir)
				entry, err := library.Locate(slug)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch entry.Stage {
				case document.StageApproved:
					fmt.Fprintf(out, "%s is already approved\n", slug)
					return nil
				case document.StagePublished:
					return fmt.Errorf("%s is already published", slug)
				}
				updates := document.HeaderFrom(document.KeyUpdatedAt, document.Timestamp(time.Now()))
				if _, _, err := library.Move(slug, document.StageApproved, updates); err != nil {
					return err
				}
				fmt.Fprintf(out, "Approved %s (was %s)\n", slug, entry.Stage)
				if item, err := store.FindBySlug(cmd.Context(), slug); err == nil && item != nil && item.Status == queue.StatusStaged {
					fmt.Fprintf(out, "Publish with: quill resume %s --from publish\n", item.ID)
				}
				return nil
			})
		},
	}
}
