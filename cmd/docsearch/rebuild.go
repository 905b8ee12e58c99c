// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ngoquytuan/chatbotdangcap/internal/config"
	"github.com/ngoquytuan/chatbotdangcap/internal/engine"
)

func newRebuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the vector index from stored embeddings",
		RunE:  runRebuild,
	}
	cmd.Flags().Bool("include-inactive", false, "also index soft-deleted chunks")
	cmd.Flags().Bool("verify", false, "only compare the index with the store")
	cmd.Flags().Bool("json", false, "print the report as JSON")
	return cmd
}

func runRebuild(cmd *cobra.Command, _ []string) error {
	verifyOnly, _ := cmd.Flags().GetBool("verify")
	asJSON, _ := cmd.Flags().GetBool("json")
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if inactive, _ := cmd.Flags().GetBool("include-inactive"); inactive {
		cfg.Index.IncludeInactive = true
	}

	e, err := openEngine(cmd.Context(), cfg, openOptions{skipVerify: true})
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	w := cmd.OutOrStdout()
	if verifyOnly {
		return runVerify(cmd, cfg, e, asJSON)
	}

	report, err := e.Rebuilder.Rebuild(cmd.Context())
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(w, report)
	}

	printTitle(w, "Index rebuilt")
	printField(w, "Vectors", report.Rebuilt)
	printField(w, "Include inactive", report.IncludeInactive)
	printField(w, "Skipped (dimension)", report.SkippedBadDimension)
	printField(w, "Skipped (encoding)", report.SkippedBadEncoding)
	printField(w, "Skipped (norm)", report.SkippedNotNormalized)
	printField(w, "Elapsed", report.Elapsed)
	printField(w, "Path", cfg.Index.Path)
	return nil
}

func runVerify(cmd *cobra.Command, cfg *config.Config, e *engine.Engine, asJSON bool) error {
	report, err := e.Rebuilder.Verify(cmd.Context())
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if asJSON {
		return printJSON(w, report)
	}

	verdict := successStyle.Render("consistent")
	if !report.Consistent() {
		verdict = warnStyle.Render("drifted")
	}
	printTitle(w, fmt.Sprintf("Index %s", verdict))
	printField(w, "Indexed", report.Indexed)
	printField(w, "Expected", report.Expected)
	printField(w, "Missing", len(report.Missing))
	printField(w, "Stale", len(report.Stale))
	printField(w, "Path", cfg.Index.Path)
	if len(report.Missing) > 0 {
		_, _ = fmt.Fprintln(w, dimStyle.Render("Run 'docsearch rebuild' to index the missing vectors."))
	}
	return nil
}
