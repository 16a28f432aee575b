package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"qrtrack/internal/config"
	"qrtrack/internal/logging"
	"qrtrack/internal/verifyflow"
)

// Set at build time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cmd := &cli.Command{
		Name:    "qrtrack",
		Usage:   "QR code issuance and scan tracking service",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "config file path (defaults to config.yaml or config/config.yaml)",
				Sources: cli.EnvVars(config.PathEnvVar),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			reconcileCommand(),
			openCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		logging.Error().Err(err).Msg("qrtrack exited with error")
		stop()
		os.Exit(1)
	}
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	return cfg, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "policy",
				Usage: "casbin policy file replacing the built-in policy",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logging.Info().Str("version", Version).Str("build_time", BuildTime).Msg("Starting qrtrack")

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.Serve(ctx, cmd.String("policy"))
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "recount scan counters that disagree with their scan rows, once",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			fixed, err := a.services.Scans.Reconcile(ctx)
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
			for _, d := range fixed {
				fmt.Fprintf(cmd.Root().Writer, "%s\t%d -> %d\n", d.CodeID, d.Cached, d.Actual)
			}
			fmt.Fprintf(cmd.Root().Writer, "%d counter(s) reconciled\n", len(fixed))
			return nil
		},
	}
}

func openCommand() *cli.Command {
	return &cli.Command{
		Name:      "open",
		Usage:     "verify a code against a running server, count down and print its destination",
		ArgsUsage: "<codeId>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "base-url",
				Usage: "server base URL (defaults to server.public_base_url)",
			},
			&cli.BoolFlag{
				Name:  "now",
				Usage: "skip the countdown",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			codeID := cmd.Args().First()
			if codeID == "" {
				return cli.Exit("usage: qrtrack open <codeId>", 2)
			}
			baseURL := cmd.String("base-url")
			countdown := verifyflow.DefaultCountdown
			// A server config is optional when --base-url is given.
			if cfg, err := loadConfig(cmd); err == nil {
				countdown = cfg.Flow.Countdown
				if baseURL == "" {
					baseURL = cfg.Server.PublicBaseURL
				}
			} else if baseURL == "" {
				return err
			}

			out := cmd.Root().Writer
			flow := verifyflow.New(
				verifyflow.NewHTTPClient(baseURL, nil),
				codeID,
				verifyflow.WithCountdown(countdown),
				verifyflow.WithOnChange(func(s verifyflow.Snapshot) {
					if s.State == verifyflow.CountingDown && s.Remaining > 0 {
						fmt.Fprintf(out, "Redirecting to %s in %d...\n", s.Destination, s.Remaining)
					}
				}),
			)
			if cmd.Bool("now") {
				flow.GoNow()
			}

			runCtx, cancel := context.WithTimeout(ctx, time.Duration(countdown+30)*time.Second)
			defer cancel()

			err := flow.Run(runCtx, func(dest string) {
				fmt.Fprintln(out, dest)
			})
			if err != nil {
				if errors.Is(err, verifyflow.ErrInvalidCode) {
					return cli.Exit(flow.Message(), 1)
				}
				return err
			}
			return nil
		},
	}
}
