package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/speculate/internal/logger"
)

var (
	configFile string
	logLevel   string
	logFormat  string
	debug      bool

	// loaded is the config file read in setup.
	loaded Config
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml (default $XDG_CONFIG_HOME/speculate/config.yaml)",
			Destination: &configFile,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text); pretty only when stderr is a terminal",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// engineFlags bind the window settings. Unset flags fall back to the config
// file and then to the engine defaults.
func engineFlags(s *engineSettings) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "max-tokens",
			Aliases:     []string{"n"},
			Usage:       "number of tokens to generate",
			Value:       s.MaxTokens,
			Destination: &s.MaxTokens,
		},
		&cli.IntFlag{
			Name:        "initial-k",
			Aliases:     []string{"k"},
			Usage:       "initial speculative window size",
			Value:       s.InitialK,
			Destination: &s.InitialK,
		},
		&cli.IntFlag{
			Name:        "min-k",
			Usage:       "smallest window the controller may choose",
			Value:       s.MinK,
			Destination: &s.MinK,
		},
		&cli.IntFlag{
			Name:        "max-k",
			Usage:       "largest window the controller may choose",
			Value:       s.MaxK,
			Destination: &s.MaxK,
		},
		&cli.Float64Flag{
			Name:        "low-threshold",
			Usage:       "acceptance ratio below which the window shrinks",
			Value:       s.LowThreshold,
			Destination: &s.LowThreshold,
		},
		&cli.Float64Flag{
			Name:        "high-threshold",
			Usage:       "acceptance ratio above which the window grows",
			Value:       s.HighThreshold,
			Destination: &s.HighThreshold,
		},
		&cli.IntFlag{
			Name:        "adjust-every",
			Usage:       "iterations averaged per window adjustment",
			Value:       s.AdjustEvery,
			Destination: &s.AdjustEvery,
		},
	}
}

func modelFlags(m *modelSettings) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "verifier-arch",
			Usage:       "verifier architecture (hash, linear)",
			Value:       m.Verifier.Arch,
			Destination: &m.Verifier.Arch,
		},
		&cli.StringFlag{
			Name:        "draft-arch",
			Usage:       "draft architecture (hash, linear)",
			Value:       m.Draft.Arch,
			Destination: &m.Draft.Arch,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "weight seed shared by both models",
			Value:       m.Seed,
			Destination: &m.Seed,
		},
		&cli.Float64Flag{
			Name:        "draft-perturb",
			Usage:       "fraction of contexts where the hash draft disagrees with the verifier",
			Value:       m.Draft.Perturb,
			Destination: &m.Draft.Perturb,
		},
		&cli.StringFlag{
			Name:        "tokenizer-config",
			Usage:       "path to a tokenizer config JSON (special tokens, bos/eos)",
			Destination: &m.TokenizerConfig,
		},
	}
}

// setup loads the config file and installs the logger into the context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := configFile
	if path == "" {
		path = configPath()
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	loaded = cfg

	if cfg.LogLevel != "" && !cmd.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !cmd.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
	level := logger.ParseLevel(logLevel)
	if debug {
		level = logger.ParseLevel("debug")
	}
	tty := stderrIsTerminal()
	format := logger.FormatJSON
	if tty {
		format = logger.FormatPretty
	}
	if logFormat != "" {
		f, err := logger.ParseFormat(logFormat)
		if err != nil {
			return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
		}
		format = f
	}
	log, err := logger.Build(os.Stderr, format, level, tty)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	return logger.WithContext(ctx, log), nil
}
