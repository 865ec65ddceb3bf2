// Package config declares the CLI flags that configure the wsd daemon, and
// resolves them (in order of precedence) from the command line, environment
// variables, and a TOML config file.
package config

import (
	"errors"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

const (
	// DefaultPort is the TCP port wsd listens on absent any configuration.
	DefaultPort = 8080
	// DefaultMaxMessageSize mirrors ws.defaultMaxMessageSize (16 MiB).
	DefaultMaxMessageSize = 16 << 20
)

// Flags declares wsd's CLI flags, each sourced first from the command line,
// then an environment variable, then the TOML file at configFilePath. This
// follows the precedence chain used throughout the donor service's own
// flags (temporal.Flags, webhooks.Flags).
func Flags(configFilePath altsrc.StringSourcer) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "listen-addr",
			Usage: "address to listen on, e.g. \":8080\" or \"127.0.0.1:8080\"",
			Value: defaultListenAddr(),
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSD_LISTEN_ADDR"),
				toml.TOML("server.listen_addr", configFilePath),
			),
		},
		&cli.IntFlag{
			Name:  "max-message-size",
			Usage: "maximum size, in bytes, of a single assembled message",
			Value: DefaultMaxMessageSize,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSD_MAX_MESSAGE_SIZE"),
				toml.TOML("server.max_message_size", configFilePath),
			),
			Validator: validatePositive,
		},
		&cli.DurationFlag{
			Name:  "read-timeout",
			Usage: "deadline applied before every frame read; 0 disables it",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSD_READ_TIMEOUT"),
				toml.TOML("server.read_timeout", configFilePath),
			),
		},
		&cli.DurationFlag{
			Name:  "write-timeout",
			Usage: "deadline applied before every frame write; 0 disables it",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSD_WRITE_TIMEOUT"),
				toml.TOML("server.write_timeout", configFilePath),
			),
		},
		&cli.BoolFlag{
			Name:  "pretty-log",
			Usage: "human-readable console logging, instead of JSON",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSD_PRETTY_LOG"),
				toml.TOML("log.pretty", configFilePath),
			),
		},
	}
}

func defaultListenAddr() string {
	return ":8080"
}

func validatePositive(n int) error {
	if n <= 0 {
		return errors.New("must be greater than zero")
	}
	return nil
}

// FromCommand reads the resolved flag values off cmd into a Config.
func FromCommand(cmd *cli.Command) Config {
	return Config{
		ListenAddr:     cmd.String("listen-addr"),
		MaxMessageSize: int64(cmd.Int("max-message-size")),
		ReadTimeout:    cmd.Duration("read-timeout"),
		WriteTimeout:   cmd.Duration("write-timeout"),
		PrettyLog:      cmd.Bool("pretty-log"),
	}
}

// Config is the fully resolved set of knobs wsd's main uses to build a
// ws.Server and its logger.
type Config struct {
	ListenAddr     string
	MaxMessageSize int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PrettyLog      bool
}
