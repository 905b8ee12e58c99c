// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ngoquytuan/chatbotdangcap/internal/config"
	"github.com/ngoquytuan/chatbotdangcap/internal/engine"
	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <chunk_id>",
		Short: "Soft-delete a chunk",
		Long: "Mark a chunk inactive and record the change in the audit log. " +
			"The chunk stays in the database and disappears from search results.",
		Args: cobra.ExactArgs(1),
		RunE: runDelete,
	}
	cmd.Flags().String("reason", "", "why the chunk is removed (required)")
	cmd.Flags().String("replaced-by", "", "chunk id that supersedes this one")
	cmd.Flags().String("user", store.DefaultAuditUser, "user recorded in the audit log")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func runDelete(cmd *cobra.Command, args []string) error {
	chunkID := args[0]
	reason, _ := cmd.Flags().GetString("reason")
	replacedBy, _ := cmd.Flags().GetString("replaced-by")
	user, _ := cmd.Flags().GetString("user")

	return withEngine(cmd.Context(), openOptions{skipVerify: true}, func(_ *config.Config, e *engine.Engine) error {
		ctx := cmd.Context()
		chunk, err := e.Store.Chunks().Get(ctx, chunkID)
		if err != nil {
			return err
		}
		if !chunk.IsActive {
			return dserr.Errorf(dserr.CodeCLIInputInvalid, "chunk %q is already inactive", chunkID)
		}

		ok, err := e.Store.Chunks().SoftDelete(ctx, chunkID, replacedBy, reason, user)
		if err != nil {
			return err
		}
		if !ok {
			return dserr.New(dserr.CodeStoreChunkNotFound, "chunk not found", dserr.FieldChunkID(chunkID))
		}
		if err := e.Store.Documents().RefreshCounters(ctx, chunk.DocumentID); err != nil {
			return err
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s (document %s)\n",
			successStyle.Render("Deactivated chunk:"), chunkID, chunk.DocumentID)
		return nil
	})
}
