// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ngoquytuan/chatbotdangcap/internal/config"
	"github.com/ngoquytuan/chatbotdangcap/internal/engine"
	"github.com/ngoquytuan/chatbotdangcap/internal/store"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the audit log",
		RunE:  runAudit,
	}
	f := cmd.Flags()
	f.String("table", "", "filter by table name")
	f.Int64("record", 0, "filter by record id")
	f.String("action", "", "filter by action, e.g. SOFT_DELETE")
	f.String("user", "", "filter by user")
	f.String("from", "", "entries at or after this date")
	f.String("to", "", "entries at or before this date")
	f.Int("limit", 50, "maximum entries")
	f.Bool("json", false, "print entries as JSON")
	return cmd
}

func runAudit(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	var filter store.AuditFilter
	filter.TableName, _ = f.GetString("table")
	filter.RecordID, _ = f.GetInt64("record")
	filter.Action, _ = f.GetString("action")
	filter.UserID, _ = f.GetString("user")
	filter.Limit, _ = f.GetInt("limit")
	asJSON, _ := f.GetBool("json")

	var err error
	from, _ := f.GetString("from")
	if filter.From, err = parseDate("from", from); err != nil {
		return err
	}
	to, _ := f.GetString("to")
	if filter.To, err = parseDate("to", to); err != nil {
		return err
	}

	return withEngine(cmd.Context(), openOptions{skipVerify: true}, func(_ *config.Config, e *engine.Engine) error {
		entries, err := e.Store.AuditLog().Query(cmd.Context(), filter)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if asJSON {
			return printJSON(w, entries)
		}
		if len(entries) == 0 {
			_, _ = fmt.Fprintln(w, "No audit entries.")
			return nil
		}
		for _, a := range entries {
			_, _ = fmt.Fprintf(w, "%s  %-6s %s#%d  by %s",
				dimStyle.Render(a.Timestamp.Local().Format(time.DateTime)), a.Action, a.TableName, a.RecordID, a.UserID)
			if a.Reason != "" {
				_, _ = fmt.Fprintf(w, "  %q", a.Reason)
			}
			_, _ = fmt.Fprintln(w)
		}
		return nil
	})
}
