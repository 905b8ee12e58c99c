// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ngoquytuan/chatbotdangcap/internal/config"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

// NewRootCmd creates the root docsearch command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "docsearch",
		Short:         "docsearch: hybrid vector and metadata retrieval over document chunks",
		Long:          "docsearch stores document chunks in SQLite, indexes their embeddings, and answers filtered semantic queries.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newInitCmd(),
		newIngestCmd(),
		newSearchCmd(),
		newDeleteCmd(),
		newRebuildCmd(),
		newStatsCmd(),
		newHealthCmd(),
		newDoctorCmd(),
		newBackupCmd(),
		newVacuumCmd(),
		newCleanupCmd(),
		newFeedbackCmd(),
		newHistoryCmd(),
		newAuditCmd(),
		newSecretCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper resets the global Viper and loads defaults, env, the config
// file, and flags so the standard precedence (flag > env > file > defaults)
// is handled uniformly.
func initViper(cmd *cobra.Command) error {
	viper.Reset()
	v := viper.GetViper()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return dserr.Errorf(dserr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is omitted so the bare name never matches the
		// ./docsearch binary.
		v.SetConfigName("docsearch")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/docsearch")
		v.AddConfigPath("/etc/docsearch")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return dserr.Errorf(dserr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
		}
	}

	if err := v.BindPFlag("data_dir", cmd.Root().PersistentFlags().Lookup("data-dir")); err != nil {
		return dserr.Errorf(dserr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
	}

	level := slog.LevelInfo
	if lvl, err := config.ParseLevel(v.GetString("logging.level")); err == nil {
		level = lvl
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	config.WarnInsecurePermissions(v.ConfigFileUsed(), v.GetString("data_dir"))

	return nil
}
