// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command wa-stickerbot is a WhatsApp bot that turns images and short videos
// sent to a group into stickers.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.mau.fi/util/exzerolog"

	"github.com/aiku/wa-stickerbot/pkg/chat"
	"github.com/aiku/wa-stickerbot/pkg/stickerbot"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	configPath      string
	generateExample bool
)

func main() {
	root := &cobra.Command{
		Use:           "wa-stickerbot",
		Short:         "WhatsApp sticker bot",
		Long:          "wa-stickerbot converts images and short videos sent to a WhatsApp group into stickers.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runBot,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the config file")
	root.Flags().BoolVarP(&generateExample, "generate-example-config", "e", false, "write the example config to the config path and exit")

	root.AddCommand(versionCmd())
	root.AddCommand(logoutCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wa-stickerbot %s (commit %s, built %s)\n", Tag, Commit, BuildTime)
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored WhatsApp credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			if err := stickerbot.New(cfg, *log, cmd.OutOrStdout()).Logout(cmd.Context()); err != nil {
				return err
			}
			log.Info().Msg("Credentials removed")
			return nil
		},
	}
}

func runBot(cmd *cobra.Command, _ []string) error {
	if generateExample {
		if err := stickerbot.WriteExampleConfig(configPath); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Wrote example config to", configPath)
		return nil
	}
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	log.Info().Str("version", Tag).Str("commit", Commit).Msg("Initializing wa-stickerbot")
	err = stickerbot.New(cfg, *log, cmd.OutOrStdout()).Run(ctx)
	if errors.Is(err, chat.ErrLoggedOut) {
		log.Warn().Msg("Session was logged out from the phone, credentials removed. Restart to pair again")
		return nil
	}
	if err != nil {
		return err
	}
	log.Info().Msg("Shutdown complete")
	return nil
}

func setup() (*stickerbot.Config, *zerolog.Logger, error) {
	cfg, err := stickerbot.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := cfg.Logging.Compile()
	if err != nil {
		return nil, nil, fmt.Errorf("configure logging: %w", err)
	}
	exzerolog.SetupDefaults(log)
	return cfg, log, nil
}
