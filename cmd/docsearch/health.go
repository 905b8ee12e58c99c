// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/ngoquytuan/chatbotdangcap/internal/config"
	"github.com/ngoquytuan/chatbotdangcap/internal/engine"
	"github.com/ngoquytuan/chatbotdangcap/internal/retrieval"
	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
	"github.com/ngoquytuan/chatbotdangcap/pkg/health"
)

type healthOutput struct {
	Store     *store.HealthReport     `json:"store"`
	Index     *retrieval.VerifyReport `json:"index"`
	Embedding embeddingHealth         `json:"embedding"`
	Recovery  *engine.Recovery        `json:"recovery,omitempty"`
}

type embeddingHealth struct {
	Provider string `json:"provider"`
	health.Metrics
}

func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check store consistency, index drift, and the embedding provider",
		RunE:  runHealth,
	}
	cmd.Flags().Bool("json", false, "print the report as JSON")
	return cmd
}

func runHealth(cmd *cobra.Command, _ []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	return withEngine(cmd.Context(), openOptions{withEmbedder: true}, func(_ *config.Config, e *engine.Engine) error {
		ctx := cmd.Context()
		verify, err := e.Rebuilder.Verify(ctx)
		if err != nil {
			return err
		}
		out := healthOutput{
			Store:     e.Store.HealthCheck(ctx),
			Index:     verify,
			Embedding: embeddingHealth{Provider: e.Embedder.Name(), Metrics: e.Embedder.HealthMetrics()},
			Recovery:  e.Recovery(),
		}

		w := cmd.OutOrStdout()
		if asJSON {
			if err := printJSON(w, out); err != nil {
				return err
			}
		} else {
			printHealth(cmd, out)
		}

		if !out.Store.OK() {
			return dserr.Errorf(dserr.CodeStoreDatabaseFailure, "metadata store is %s", out.Store.Status)
		}
		return nil
	})
}

func printHealth(cmd *cobra.Command, out healthOutput) {
	w := cmd.OutOrStdout()
	r := out.Store

	printTitle(w, "Metadata store")
	printField(w, "Status", statusStyle(r.Status).Render(string(r.Status)))
	for _, issue := range r.Issues {
		printField(w, "Issue", errorStyle.Render(issue))
	}
	for _, warning := range r.Warnings {
		printField(w, "Warning", warnStyle.Render(warning))
	}
	printField(w, "Checked at", r.CheckedAt.Format(time.RFC3339))

	printTitle(w, "Vector index")
	if out.Index.Consistent() {
		printField(w, "Status", successStyle.Render("consistent"))
	} else {
		printField(w, "Status", warnStyle.Render("drifted"))
	}
	printField(w, "Indexed", out.Index.Indexed)
	printField(w, "Expected", out.Index.Expected)
	printField(w, "Missing", len(out.Index.Missing))
	printField(w, "Stale", len(out.Index.Stale))
	if out.Recovery != nil {
		printField(w, "Recovered at open", out.Recovery.Reason)
	}

	printTitle(w, "Embedding")
	printField(w, "Provider", out.Embedding.Provider)
	if out.Embedding.Available {
		printField(w, "Available", successStyle.Render("yes"))
	} else {
		printField(w, "Available", warnStyle.Render("no"))
	}
	printField(w, "Failures", out.Embedding.FailureCount)
	if out.Embedding.CooldownUntil != nil {
		printField(w, "Cooldown until", out.Embedding.CooldownUntil.Format(time.RFC3339))
	}
}
