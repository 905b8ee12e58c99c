// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ngoquytuan/chatbotdangcap/internal/config"
	"github.com/ngoquytuan/chatbotdangcap/internal/engine"
	"github.com/ngoquytuan/chatbotdangcap/internal/store"
)

type statsOutput struct {
	Database *store.DatabaseStats   `json:"database"`
	Chunks   *store.ChunkStatistics `json:"chunks"`
	Index    indexStats             `json:"index"`
}

type indexStats struct {
	Path      string `json:"path"`
	Vectors   int    `json:"vectors"`
	Dimension int    `json:"dimension"`
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database, chunk, and index statistics",
		RunE:  runStats,
	}
	cmd.Flags().String("document", "", "limit chunk statistics to one document")
	cmd.Flags().Bool("json", false, "print statistics as JSON")
	return cmd
}

func runStats(cmd *cobra.Command, _ []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	documentID, _ := cmd.Flags().GetString("document")

	return withEngine(cmd.Context(), openOptions{skipVerify: true}, func(cfg *config.Config, e *engine.Engine) error {
		ctx := cmd.Context()
		db, err := e.Store.Stats(ctx)
		if err != nil {
			return err
		}
		chunks, err := e.Store.ChunkStatistics(ctx, documentID)
		if err != nil {
			return err
		}
		out := statsOutput{
			Database: db,
			Chunks:   chunks,
			Index:    indexStats{Path: cfg.Index.Path, Vectors: e.Index.Len(), Dimension: e.Index.Dimension()},
		}

		w := cmd.OutOrStdout()
		if asJSON {
			return printJSON(w, out)
		}

		printTitle(w, "Database")
		printField(w, "Documents", db.TotalDocuments)
		printField(w, "Chunks", fmt.Sprintf("%d (%d active, %d inactive)", db.TotalChunks, db.ActiveChunks, db.InactiveChunks))
		printField(w, "Searches (24h)", db.SearchesLast24h)
		printField(w, "Size", fmt.Sprintf("%.2f MB", db.SizeMB()))

		printTitle(w, "Active chunks")
		printField(w, "Tokens", fmt.Sprintf("%d (avg %.1f)", chunks.TotalTokens, chunks.AvgTokens))
		for _, g := range chunks.Categories {
			printField(w, "Category "+g.Key, g.Count)
		}
		for _, g := range chunks.Languages {
			printField(w, "Language "+g.Key, g.Count)
		}
		for _, g := range chunks.RecentUpdates {
			printField(w, "Updated "+g.Key, g.Count)
		}

		printTitle(w, "Vector index")
		printField(w, "Vectors", out.Index.Vectors)
		printField(w, "Dimension", out.Index.Dimension)
		printField(w, "Path", out.Index.Path)
		return nil
	})
}
