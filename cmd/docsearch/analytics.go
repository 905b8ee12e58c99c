// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ngoquytuan/chatbotdangcap/internal/config"
	"github.com/ngoquytuan/chatbotdangcap/internal/engine"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

func newFeedbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "feedback <search_id> <score>",
		Short: "Rate a logged search from 1 to 5",
		Args:  cobra.ExactArgs(2),
		RunE:  runFeedback,
	}
}

func runFeedback(cmd *cobra.Command, args []string) error {
	searchID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return dserr.Errorf(dserr.CodeCLIInputInvalid, "search id %q is not a number", args[0])
	}
	score, err := strconv.Atoi(args[1])
	if err != nil {
		return dserr.Errorf(dserr.CodeCLIInputInvalid, "score %q is not a number", args[1])
	}

	return withEngine(cmd.Context(), openOptions{skipVerify: true}, func(_ *config.Config, e *engine.Engine) error {
		if err := e.Store.Analytics().RecordFeedback(cmd.Context(), searchID, score); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s search %d rated %d\n", successStyle.Render("Recorded:"), searchID, score)
		return nil
	})
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent searches",
		RunE:  runHistory,
	}
	cmd.Flags().Int("limit", 20, "number of searches to show")
	cmd.Flags().Bool("json", false, "print searches as JSON")
	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	return withEngine(cmd.Context(), openOptions{skipVerify: true}, func(_ *config.Config, e *engine.Engine) error {
		logs, err := e.Store.Analytics().Recent(cmd.Context(), limit)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if asJSON {
			return printJSON(w, logs)
		}
		if len(logs) == 0 {
			_, _ = fmt.Fprintln(w, "No searches logged.")
			return nil
		}
		for _, l := range logs {
			feedback := "-"
			if l.FeedbackScore != nil {
				feedback = strconv.Itoa(*l.FeedbackScore)
			}
			_, _ = fmt.Fprintf(w, "%6d  %s  %3d results  %5dms  feedback %s  %q\n",
				l.ID, dimStyle.Render(l.Timestamp.Local().Format(time.DateTime)),
				l.ResultsCount, l.SearchTimeMS, feedback, l.QueryText)
		}
		return nil
	})
}
