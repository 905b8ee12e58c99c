// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ngoquytuan/chatbotdangcap/internal/config"
	"github.com/ngoquytuan/chatbotdangcap/internal/engine"
	"github.com/ngoquytuan/chatbotdangcap/internal/retrieval"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <batch.json>...",
		Short: "Load processed document batches into the store and index",
		Long: "Each file holds one document with its chunks and embeddings, as produced by the " +
			"document processor. Chunks already present are skipped.",
		Args: cobra.MinimumNArgs(1),
		RunE: runIngest,
	}
	cmd.Flags().Bool("normalize", false, "scale embeddings to unit length before indexing")
	cmd.Flags().Bool("json", false, "print reports as JSON")
	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	normalize, _ := cmd.Flags().GetBool("normalize")
	asJSON, _ := cmd.Flags().GetBool("json")
	w := cmd.OutOrStdout()

	return withEngine(cmd.Context(), openOptions{}, func(_ *config.Config, e *engine.Engine) error {
		var reports []*retrieval.IngestReport
		for _, path := range args {
			batch, err := readBatch(path)
			if err != nil {
				return err
			}
			if normalize {
				batch.NormalizeEmbeddings()
			}

			report, err := e.Ingestor.Ingest(cmd.Context(), batch)
			if err != nil {
				return dserr.With(err, dserr.Field("file", path))
			}
			reports = append(reports, report)
			if !asJSON {
				printIngestReport(cmd, path, report)
			}
		}
		if asJSON {
			return printJSON(w, reports)
		}
		return nil
	})
}

func readBatch(path string) (*retrieval.IngestBatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, dserr.Errorf(dserr.CodeCLIInputInvalid, "opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	batch, err := retrieval.DecodeBatch(f)
	if err != nil {
		return nil, dserr.Wrapf(err, dserr.CodeCLIInputInvalid, "reading %s", path)
	}
	return batch, nil
}

func printIngestReport(cmd *cobra.Command, path string, r *retrieval.IngestReport) {
	w := cmd.OutOrStdout()
	printTitle(w, fmt.Sprintf("%s (%s)", r.DocumentID, path))
	printField(w, "Inserted", r.Inserted)
	printField(w, "Indexed", r.Indexed)
	printField(w, "Duplicates", r.Duplicates)
	if r.Invalid > 0 {
		printField(w, "Invalid", warnStyle.Render(fmt.Sprint(r.Invalid)))
	}
	if r.VectorRejected > 0 {
		printField(w, "Vector rejected", warnStyle.Render(fmt.Sprint(r.VectorRejected)))
	}
	if r.Unembedded > 0 {
		printField(w, "Without embedding", r.Unembedded)
	}
	for _, rej := range r.Rejections {
		_, _ = fmt.Fprintf(w, "    %s %s %s\n", dimStyle.Render(rej.ChunkID), rej.Code, rej.Reason)
	}
}
