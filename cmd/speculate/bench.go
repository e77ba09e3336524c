package main

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/speculate/internal/logger"
	"github.com/samcharles93/speculate/internal/speculative"
)

func benchCmd() *cli.Command {
	var (
		warmupRuns int64
		benchRuns  int64
		prompt     string
	)
	engine := defaultEngineSettings()
	models := defaultModelSettings()

	flags := append(engineFlags(engine), modelFlags(models)...)
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "number of warmup runs",
			Value:       1,
			Destination: &warmupRuns,
		},
		&cli.Int64Flag{
			Name:        "runs",
			Usage:       "number of benchmark runs per mode",
			Value:       3,
			Destination: &benchRuns,
		},
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "prompt text for benchmarking",
			Value:       "The quick brown fox jumps over the lazy dog.",
			Destination: &prompt,
		},
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Compare the adaptive window against a fixed single-token window",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyEngineConfig(cmd, loaded.Engine, engine)
			applyModelConfig(cmd, loaded, models)
			if benchRuns < 1 {
				return cli.Exit("error: --runs must be at least 1", 1)
			}

			p, err := buildPair(models)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			adaptive := engine.config()
			fixed := adaptive
			fixed.InitialK, fixed.MinK, fixed.MaxK = 1, 1, 1

			fmt.Println("=== Speculate Benchmark ===")
			fmt.Printf("Verifier: %s\n", p.verifier.Name())
			fmt.Printf("Draft:    %s\n", p.draft.Name())
			fmt.Printf("CPUs:     %d\n", runtime.NumCPU())
			fmt.Printf("Tokens:   %d per run\n", adaptive.MaxTokens)
			fmt.Printf("Warmup:   %d runs\n", warmupRuns)
			fmt.Printf("Runs:     %d per mode\n", benchRuns)
			fmt.Println()

			fmt.Printf("%-10s %6s %8s %8s %10s %8s %10s %10s\n",
				"Mode", "Run", "Tokens", "Iters", "Tok/iter", "Accept", "Duration", "TPS")
			for _, mode := range []struct {
				name string
				cfg  speculative.Config
			}{
				{name: "adaptive", cfg: adaptive},
				{name: "k=1", cfg: fixed},
			} {
				driver, err := speculative.New(p.verifier, p.draft, p.tok, mode.cfg)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				for i := range int(warmupRuns) {
					log.Info("warmup run", "mode", mode.name, "run", i+1)
					if _, err := driver.Generate(ctx, prompt, nil); err != nil {
						return cli.Exit(fmt.Sprintf("error: warmup run %d: %v", i+1, err), 1)
					}
				}

				var sumPerIter, sumAccept, sumTPS float64
				for i := range int(benchRuns) {
					res, err := driver.Generate(ctx, prompt, nil)
					if err != nil {
						return cli.Exit(fmt.Sprintf("error: benchmark run %d: %v", i+1, err), 1)
					}
					st := res.Stats
					fmt.Printf("%-10s %6d %8d %8d %10.2f %7.1f%% %10s %10.1f\n",
						mode.name, i+1, st.TokensGenerated, st.Iterations, st.TokensPerIteration,
						st.AcceptanceRate*100, st.Duration.Round(time.Microsecond), st.TPS)
					sumPerIter += st.TokensPerIteration
					sumAccept += st.AcceptanceRate
					sumTPS += st.TPS
				}
				n := float64(benchRuns)
				fmt.Printf("%-10s %6s %8s %8s %10.2f %7.1f%% %10s %10.1f\n\n",
					mode.name, "avg", "", "", sumPerIter/n, sumAccept/n*100, "", sumTPS/n)
			}

			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			fmt.Printf("Memory: %.1f MB alloc, %.1f MB sys\n",
				float64(mem.Alloc)/(1024*1024),
				float64(mem.Sys)/(1024*1024))
			return nil
		},
	}
}
