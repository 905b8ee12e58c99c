// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ngoquytuan/chatbotdangcap/internal/config"
	"github.com/ngoquytuan/chatbotdangcap/internal/engine"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config and create the database and index",
		Long:  "Write a commented default config (unless one exists), then create the metadata database and an empty vector index.",
		RunE:  runInit,
	}
	cmd.Flags().String("path", "", "config file to write (default ~/.config/docsearch/docsearch.yaml)")
	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()

	path, _ := cmd.Flags().GetString("path")
	if path == "" {
		var err error
		if path, err = config.DefaultConfigPath(); err != nil {
			return err
		}
	}
	written, err := config.WriteDefault(path)
	if err != nil {
		return err
	}
	if written {
		_, _ = fmt.Fprintln(w, successStyle.Render("Wrote config:"), path)
	} else {
		_, _ = fmt.Fprintln(w, dimStyle.Render("Config exists:"), path)
	}

	return withEngine(cmd.Context(), openOptions{}, func(cfg *config.Config, e *engine.Engine) error {
		_, _ = fmt.Fprintln(w, successStyle.Render("Database:"), cfg.Storage.DatabasePath)
		_, _ = fmt.Fprintf(w, "%s %s (%d dimensions, %d vectors)\n",
			successStyle.Render("Index:"), cfg.Index.Path, e.Index.Dimension(), e.Index.Len())
		return e.Index.Persist(cmd.Context(), cfg.Index.Path)
	})
}
