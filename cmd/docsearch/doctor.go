// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"

	"github.com/ngoquytuan/chatbotdangcap/internal/config"
	"github.com/ngoquytuan/chatbotdangcap/internal/embedding"
	"github.com/ngoquytuan/chatbotdangcap/internal/secrets"
)

type doctorCheck struct {
	name string
	fn   func() string
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the binary, config, database and index files, embedding credentials, and disk space without opening the store.",
		RunE:  runDoctor,
	}
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()

	// Doctor reports problems instead of failing on them.
	cfg, cfgErr := config.FromViper(viper.GetViper())

	checks := []doctorCheck{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", func() string { return checkConfig(cfgErr) }},
	}
	if cfgErr == nil {
		checks = append(checks, []doctorCheck{
			{"Database", func() string { return checkFile(cfg.Storage.DatabasePath) }},
			{"Vector Index", func() string { return checkFile(cfg.Index.Path) }},
			{"Embedding", func() string { return checkEmbedding(cfg) }},
			{"Disk Space", func() string { return checkDiskSpace(cfg.DataDir) }},
			{"Permissions", func() string { return checkPermissions(cfg.DataDir) }},
		}...)
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}
	return nil
}

func checkBinary() string {
	info := currentVersion()
	return fmt.Sprintf("docsearch %s (commit %s, %s)", info.Version, info.Commit, info.Platform)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkPermissions(dataDir string) string {
	issues := config.AuditPermissions(viper.ConfigFileUsed(), dataDir)
	if len(issues) == 0 {
		return "ok"
	}
	lines := make([]string, len(issues))
	for i, issue := range issues {
		lines[i] = warnStyle.Render(fmt.Sprintf("%s is %s, want %s", issue.Path, issue.Mode.Perm(), issue.Recommended))
	}
	return strings.Join(lines, "\n"+strings.Repeat(" ", 21))
}

func checkConfig(err error) string {
	if err != nil {
		return errorStyle.Render(fmt.Sprintf("invalid: %s", err))
	}
	if cfgFile := viper.ConfigFileUsed(); cfgFile != "" {
		return fmt.Sprintf("loaded from %s", cfgFile)
	}
	return "using defaults (no config file found)"
}

func checkFile(path string) string {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return warnStyle.Render(fmt.Sprintf("not created yet at %s (run 'docsearch init')", path))
	}
	if err != nil {
		return errorStyle.Render(fmt.Sprintf("error: %s", err))
	}
	return fmt.Sprintf("%s (%s)", path, formatBytes(uint64(info.Size())))
}

func checkEmbedding(cfg *config.Config) string {
	e := cfg.Embedding
	switch {
	case e.Provider == embedding.ProviderNone:
		return warnStyle.Render("no provider configured; search is unavailable")
	case e.APIKey == "":
		return errorStyle.Render(fmt.Sprintf("%s: missing api_key", e.Provider))
	case secrets.IsKeyringURI(e.APIKey):
		if _, err := secrets.ResolveKeyringURI(secretStoreFactory(), e.APIKey); err != nil {
			return errorStyle.Render(fmt.Sprintf("%s: %s", e.Provider, err))
		}
		return fmt.Sprintf("%s/%s (key in keyring)", e.Provider, e.Model)
	default:
		return fmt.Sprintf("%s/%s", e.Provider, e.Model)
	}
}

func checkDiskSpace(dataDir string) string {
	path := dataDir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Fall back to the parent while the data directory doesn't exist yet.
		path = filepath.Dir(filepath.Clean(path))
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
		kb = 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
