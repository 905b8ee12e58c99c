// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ngoquytuan/chatbotdangcap/internal/config"
	"github.com/ngoquytuan/chatbotdangcap/internal/engine"
	"github.com/ngoquytuan/chatbotdangcap/internal/retrieval"
	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

const snippetRunes = 240

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a filtered semantic search",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}

	f := cmd.Flags()
	f.IntP("top-k", "k", 0, "number of results (default from config)")
	f.StringSlice("role", nil, "caller roles used for access filtering")
	f.StringSlice("document", nil, "restrict to these document ids")
	f.StringSlice("category", nil, "restrict to these categories")
	f.StringSlice("language", nil, "restrict to these languages")
	f.String("text", "", "additionally require this substring in text, title, or heading")
	f.String("from", "", "only chunks updated at or after this date (YYYY-MM-DD or RFC 3339)")
	f.String("to", "", "only chunks updated at or before this date (YYYY-MM-DD or RFC 3339)")
	f.Int("factor", 0, "over-fetch factor for vector search (default from config)")
	f.String("user", "", "user id recorded in analytics")
	f.String("session", "", "session id recorded in analytics (default: random)")
	f.Bool("json", false, "print the response as JSON")
	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	req, err := searchRequest(cmd, strings.Join(args, " "))
	if err != nil {
		return err
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	return withEngine(cmd.Context(), openOptions{withEmbedder: true}, func(_ *config.Config, e *engine.Engine) error {
		resp, err := e.Retriever.Retrieve(cmd.Context(), req)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		printResults(cmd, req.Query, resp)
		return nil
	})
}

func searchRequest(cmd *cobra.Command, query string) (retrieval.Request, error) {
	f := cmd.Flags()
	req := retrieval.Request{Query: query}
	req.TopK, _ = f.GetInt("top-k")
	req.CompensationFactor, _ = f.GetInt("factor")
	if req.CompensationFactor < 0 || req.CompensationFactor > store.MaxSearchK {
		return req, dserr.Errorf(dserr.CodeCLIInputInvalid, "--factor must be in [0, %d] (0 uses the configured factor), got %d",
			store.MaxSearchK, req.CompensationFactor)
	}
	req.UserRoles, _ = f.GetStringSlice("role")
	req.DocumentIDs, _ = f.GetStringSlice("document")
	req.Categories, _ = f.GetStringSlice("category")
	req.Languages, _ = f.GetStringSlice("language")
	req.TextQuery, _ = f.GetString("text")
	req.UserID, _ = f.GetString("user")
	req.SessionID, _ = f.GetString("session")

	var err error
	from, _ := f.GetString("from")
	if req.UpdatedFrom, err = parseDate("from", from); err != nil {
		return req, err
	}
	to, _ := f.GetString("to")
	if req.UpdatedTo, err = parseDate("to", to); err != nil {
		return req, err
	}
	return req, nil
}

func parseDate(flag, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, dserr.Errorf(dserr.CodeCLIInputInvalid, "--%s: cannot parse %q as a date", flag, s)
}

func printResults(cmd *cobra.Command, query string, resp *retrieval.Response) {
	w := cmd.OutOrStdout()
	header := fmt.Sprintf("%q: %d results from %d candidates in %s",
		query, len(resp.Results), resp.Candidates, resp.Elapsed.Round(time.Millisecond))
	if resp.SearchID > 0 {
		header += fmt.Sprintf(" (search %d)", resp.SearchID)
	}
	printTitle(w, header)

	for _, r := range resp.Results {
		heading := r.Title
		if r.Heading != "" {
			heading += " / " + r.Heading
		}
		body := fmt.Sprintf("%s  %s  %s\n%s\n%s",
			titleStyle.Render(fmt.Sprintf("#%d", r.Rank)),
			successStyle.Render(fmt.Sprintf("%.4f", r.Score)),
			dimStyle.Render(r.ChunkID),
			labelStyle.Render(heading),
			snippet(r.Text, snippetRunes),
		)
		_, _ = fmt.Fprintln(w, boxStyle.Render(body))
	}
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
