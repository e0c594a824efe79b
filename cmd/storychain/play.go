package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"storychain/internal/client"
	"storychain/internal/config"
)

func newPlayCmd() *cobra.Command {
	var (
		opts     client.Options
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play from the terminal against a running server",
		Long: "Play from the terminal against a running server.\n\n" +
			"Without --room a new room is created. A room invite link (ws://host/ws?room=CODE)\n" +
			"can be passed as --url instead of --room.",
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return config.ApplyEnv(config.NewViper(), cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(os.Stderr, logLevel, "text")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			player, err := client.Dial(ctx, opts, os.Stdin, os.Stdout, logger)
			if err != nil {
				return err
			}
			return player.Run(ctx)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&opts.URL, "url", "u", "ws://localhost:8080/ws", "server websocket URL (env: STORYCHAIN_URL)")
	fs.StringVarP(&opts.Name, "name", "n", "", "display name (env: STORYCHAIN_NAME)")
	fs.StringVarP(&opts.Room, "room", "r", "", "room code to join (env: STORYCHAIN_ROOM)")
	fs.BoolVar(&opts.Create, "create", false, "create --room instead of joining it (env: STORYCHAIN_CREATE)")
	fs.StringVar(&logLevel, "log-level", "warn", "debug, info, warn or error (env: STORYCHAIN_LOG_LEVEL)")

	return cmd
}
