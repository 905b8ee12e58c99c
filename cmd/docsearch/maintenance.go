// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ngoquytuan/chatbotdangcap/internal/config"
	"github.com/ngoquytuan/chatbotdangcap/internal/engine"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup <dest.db>",
		Short: "Write an online copy of the database and the vector index",
		Long:  "Copy the metadata database to <dest.db> and the vector index to <dest.db>.idx while the store stays usable.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := args[0]
			return withEngine(cmd.Context(), openOptions{skipVerify: true}, func(_ *config.Config, e *engine.Engine) error {
				if err := e.Store.Backup(cmd.Context(), dest); err != nil {
					return err
				}
				if err := e.Index.Persist(cmd.Context(), dest+".idx"); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Backup written:"), dest, dest+".idx")
				return nil
			})
		},
	}
}

func newVacuumCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vacuum",
		Short: "Compact the database and refresh query planner statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd.Context(), openOptions{skipVerify: true}, func(_ *config.Config, e *engine.Engine) error {
				before, err := e.Store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if err := e.Store.Vacuum(cmd.Context()); err != nil {
					return err
				}
				if err := e.Store.Analyze(cmd.Context()); err != nil {
					return err
				}
				after, err := e.Store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %.2f MB -> %.2f MB\n",
					successStyle.Render("Vacuumed:"), before.SizeMB(), after.SizeMB())
				return nil
			})
		},
	}
}

func newCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Prune old search analytics",
		Long:  "Delete search analytics older than the retention period. The audit log is append-only and never pruned.",
		RunE:  runCleanup,
	}
	cmd.Flags().Int("days", 0, "retention in days (default analytics.retention_days)")
	return cmd
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	return withEngine(cmd.Context(), openOptions{skipVerify: true}, func(cfg *config.Config, e *engine.Engine) error {
		days, _ := cmd.Flags().GetInt("days")
		if days == 0 {
			days = cfg.Analytics.RetentionDays
		}
		if days < 0 {
			return dserr.Errorf(dserr.CodeCLIInputInvalid, "--days must be positive, got %d", days)
		}

		cutoff := time.Now().AddDate(0, 0, -days)
		n, err := e.Store.Analytics().Cleanup(cmd.Context(), cutoff)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %d search logs older than %s\n",
			successStyle.Render("Removed:"), n, cutoff.Format(time.DateOnly))
		return nil
	})
}
