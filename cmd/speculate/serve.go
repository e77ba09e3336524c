package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/speculate/internal/api"
	"github.com/samcharles93/speculate/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		ignoreEOS   bool
	)
	engine := defaultEngineSettings()
	models := defaultModelSettings()

	flags := append(engineFlags(engine), modelFlags(models)...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8080",
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read timeout",
			Value:       30 * time.Second,
			Destination: &readTimeout,
		},
		&cli.BoolFlag{
			Name:        "ignore-eos",
			Usage:       "keep generating past end-of-sequence tokens",
			Destination: &ignoreEOS,
		},
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the generation REST API",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyEngineConfig(cmd, loaded.Engine, engine)
			applyModelConfig(cmd, loaded, models)
			if loaded.ServerAddress != "" && !cmd.IsSet("addr") {
				addr = loaded.ServerAddress
			}

			p, err := buildPair(models)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			cfg := engine.config()
			if !ignoreEOS {
				cfg.StopTokens = p.tok.StopTokens()
			}
			eng, err := api.NewEngine(p.verifier, p.draft, p.tok, cfg)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			server := api.NewServer(api.NewGenerationStore(), eng, log)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "verifier", p.verifier.Name(), "draft", p.draft.Name())
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
