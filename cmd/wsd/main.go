// Command wsd runs a standalone WebSocket server that broadcasts every Text
// message it receives to all other currently connected clients.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/quietloop/gwss/internal/broadcast"
	"github.com/quietloop/gwss/internal/config"
	"github.com/quietloop/gwss/pkg/ws"
)

func main() {
	bi, _ := debug.ReadBuildInfo()

	path, err := config.FilePath()
	if err != nil {
		fmt.Printf("Error: failed to resolve config file: %v\n", err)
		os.Exit(1)
	}

	cmd := &cli.Command{
		Name:  "wsd",
		Usage: "standalone WebSocket broadcast server",
		Flags: config.Flags(path),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.FromCommand(cmd)
			logger := newLogger(cfg.PrettyLog)
			return run(ctx, cfg, logger)
		},
	}
	if bi != nil {
		cmd.Version = bi.Main.Version
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	var hub *broadcast.Hub
	var srv *ws.Server

	hub = broadcast.NewHub(nil, logger) // sender wired in below, once srv exists
	srv = ws.NewServer(ws.Callbacks{
		OnOpen:    hub.OnOpen,
		OnMessage: hub.OnMessage,
		OnClose:   hub.OnClose,
		OnError:   hub.OnError,
	},
		ws.WithLogger(logger),
		ws.WithMaxMessageSize(cfg.MaxMessageSize),
		ws.WithReadTimeout(cfg.ReadTimeout),
		ws.WithWriteTimeout(cfg.WriteTimeout),
	)
	hub.SetSender(srv)

	logger.Info().Str("addr", cfg.ListenAddr).Msg("starting wsd")
	return srv.ListenAndServe(cfg.ListenAddr)
}

func newLogger(pretty bool) zerolog.Logger {
	if pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
