package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/speculate/internal/logger"
	"github.com/samcharles93/speculate/internal/speculative"
)

func runCmd() *cli.Command {
	var (
		prompt         string
		streamMode     string
		ignoreEOS      bool
		showStats      bool
		showIterations bool
	)
	engine := defaultEngineSettings()
	models := defaultModelSettings()

	flags := append(engineFlags(engine), modelFlags(models)...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "prompt text",
			Destination: &prompt,
		},
		&cli.StringFlag{
			Name:        "stream-mode",
			Usage:       "output mode (instant, typewriter, quiet)",
			Value:       string(StreamInstant),
			Destination: &streamMode,
		},
		&cli.BoolFlag{
			Name:        "ignore-eos",
			Usage:       "keep generating past end-of-sequence tokens",
			Destination: &ignoreEOS,
		},
		&cli.BoolFlag{
			Name:        "stats",
			Usage:       "print session statistics to stderr",
			Value:       true,
			Destination: &showStats,
		},
		&cli.BoolFlag{
			Name:        "show-iterations",
			Usage:       "print every draft/verify decision to stderr",
			Destination: &showIterations,
		},
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Run one speculative decoding session",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyEngineConfig(cmd, loaded.Engine, engine)
			applyModelConfig(cmd, loaded, models)
			if loaded.StreamMode != "" && !cmd.IsSet("stream-mode") {
				streamMode = loaded.StreamMode
			}
			if prompt == "" && cmd.Args().Len() > 0 {
				prompt = cmd.Args().First()
			}
			if prompt == "" {
				return cli.Exit("error: --prompt is required", 1)
			}
			mode, err := parseStreamMode(streamMode)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			p, err := buildPair(models)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			cfg := engine.config()
			if !ignoreEOS {
				cfg.StopTokens = p.tok.StopTokens()
			}
			if showIterations {
				cfg.OnIteration = func(r speculative.IterationReport) {
					printIteration(os.Stderr, r)
				}
			}
			driver, err := speculative.New(p.verifier, p.draft, p.tok, cfg)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			log.Debug("starting session",
				"verifier", p.verifier.Name(),
				"draft", p.draft.Name(),
				"max_tokens", cfg.MaxTokens,
				"initial_k", cfg.InitialK,
			)
			out := NewStreamWriter(mode, os.Stdout)
			res, genErr := driver.Generate(ctx, prompt, out.Write)
			out.Flush()
			if stdoutIsTerminal() || mode == StreamQuiet {
				fmt.Println()
			}
			if res != nil && showStats {
				printStats(os.Stderr, res.Stats)
			}
			if genErr != nil {
				return cli.Exit(fmt.Sprintf("error: generate: %v", genErr), 1)
			}
			return nil
		},
	}
}

func printIteration(w io.Writer, r speculative.IterationReport) {
	_, _ = fmt.Fprintf(w, "iter %3d  k=%d  %-40s committed=%v  verifier=%d draft=%d next_k=%d\n",
		r.Iteration, r.K, r.Outcome.String(), r.Committed, r.VerifierPos, r.DraftPos, r.WindowK)
}

func printStats(w io.Writer, st speculative.Stats) {
	_, _ = fmt.Fprintf(w, "tokens:      %d in %d iterations (%.2f per verifier pass)\n",
		st.TokensGenerated, st.Iterations, st.TokensPerIteration)
	_, _ = fmt.Fprintf(w, "acceptance:  %d/%d drafted (%.1f%%), %d bonus, %d rejections\n",
		st.Accepted, st.Drafted, st.AcceptanceRate*100, st.BonusTokens, st.Rejections)
	_, _ = fmt.Fprintf(w, "window:      final k=%d (+%d/-%d)\n", st.FinalK, st.WindowIncreases, st.WindowDecreases)
	_, _ = fmt.Fprintf(w, "forwards:    verifier=%d draft=%d barriers=%d\n", st.VerifierForwards, st.DraftForwards, st.Barriers)
	_, _ = fmt.Fprintf(w, "time:        %s total (prefill %s, draft %s, verify %s, resync %s), %.2f tok/s\n",
		st.Duration.Round(time.Microsecond),
		st.PrefillDuration.Round(time.Microsecond),
		st.DraftDuration.Round(time.Microsecond),
		st.VerifyDuration.Round(time.Microsecond),
		st.ResyncDuration.Round(time.Microsecond),
		st.TPS)
}
