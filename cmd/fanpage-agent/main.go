// Package main provides the fanpage-agent entry point and its CLI commands.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"

	"fanpage-agent/internal/agent"
	"fanpage-agent/internal/config"
	"fanpage-agent/internal/graph"
	"fanpage-agent/internal/logger"
	"fanpage-agent/internal/report"
	"fanpage-agent/internal/token"
)

func main() {
	cmd := &cli.Command{
		Name:    "fanpage-agent",
		Usage:   "Automation agent for a Facebook fan page",
		Version: "1.0.0",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Start the polling loop",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "cycles",
						Value: 0,
						Usage: "Number of cycles to run (0 = run forever)",
					},
					&cli.DurationFlag{
						Name:  "interval",
						Value: 0,
						Usage: "Pause between cycles (0 = use POLL_INTERVAL_SECONDS)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runAgent(ctx, int(cmd.Int("cycles")), cmd.Duration("interval"))
				},
			},
			{
				Name:  "token",
				Usage: "Inspect and manage the access token",
				Commands: []*cli.Command{
					{
						Name:  "info",
						Usage: "Print the cached token snapshot (no network calls)",
						Action: func(ctx context.Context, cmd *cli.Command) error {
							return tokenInfo()
						},
					},
					{
						Name:  "refresh",
						Usage: "Force one validation/refresh escalation",
						Action: func(ctx context.Context, cmd *cli.Command) error {
							return tokenRefresh(ctx)
						},
					},
				},
			},
			{
				Name:  "pages",
				Usage: "List pages visible to the credential",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return listPages(ctx)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type services struct {
	settings *config.Settings
	log      zerolog.Logger
	manager  *token.Manager
}

// buildServices wires settings, store and credential manager. interactive
// controls whether the manager may fall back to the operator prompt.
func buildServices(interactive bool) (*services, error) {
	settings := config.Load()
	log := logger.New(settings.LogLevel)

	store := config.NewStore(settings.ConfigPath)
	record, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", settings.ConfigPath, err)
	}
	record = record.MergeEnv(settings)

	httpClient := &http.Client{Timeout: 30 * time.Second}

	var extractor token.Extractor
	if interactive {
		extractor = token.NewPromptExtractor(log, true)
	}

	manager := token.NewManager(token.ManagerConfig{
		Store:          store,
		Validator:      token.NewGraphValidator(httpClient, "", settings.GraphVersion),
		Refresher:      token.NewGraphRefresher(httpClient, "", settings.GraphVersion, nil),
		Extractor:      extractor,
		Logger:         log,
		InitialRecord:  record,
		ExtractTimeout: settings.ExtractTimeout,
	})

	return &services{settings: settings, log: log, manager: manager}, nil
}

func (s *services) graphClient() *graph.Client {
	return graph.NewClient(graph.ClientConfig{
		Version: s.settings.GraphVersion,
		Tokens:  s.manager,
		Limiter: rate.NewLimiter(rate.Limit(s.settings.RateLimitPerSec), s.settings.RateLimitBurst),
		Logger:  s.log,
	})
}

func runAgent(ctx context.Context, cycles int, interval time.Duration) error {
	svc, err := buildServices(true)
	if err != nil {
		return err
	}
	if interval == 0 {
		interval = svc.settings.PollInterval
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reportCredentials(ctx, svc)

	actions := report.NewStore(svc.settings.ReportPath)
	ag, err := agent.New(agent.Config{
		API:          svc.graphClient(),
		Actions:      actions,
		Logger:       svc.log,
		PageID:       svc.settings.PageID,
		PostLimit:    svc.settings.PostLimit,
		CommentLimit: svc.settings.CommentLimit,
	})
	if err != nil {
		return err
	}

	svc.log.Info().
		Int("cycles", cycles).
		Dur("interval", interval).
		Msg("starting agent")

	if err := ag.Run(ctx, cycles, interval); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// reportCredentials logs the credential state once at startup so an expired
// token is visible before the first cycle needs it.
func reportCredentials(ctx context.Context, svc *services) {
	cred, err := svc.manager.GetValidToken(ctx, false)
	if err != nil {
		svc.log.Warn().Err(err).Msg("could not obtain a valid token at startup, will retry per cycle")
		return
	}

	event := svc.log.Info().Str("token", cred.Value[:min(12, len(cred.Value))]+"...")
	if cred.ExpiresAt != nil {
		event = event.Int64("minutes_until_expiry", int64(time.Until(*cred.ExpiresAt).Minutes()))
	}
	event.Msg("credentials loaded")
}

func tokenInfo() error {
	svc, err := buildServices(false)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(svc.manager.GetTokenInfo(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func tokenRefresh(ctx context.Context) error {
	svc, err := buildServices(true)
	if err != nil {
		return err
	}

	cred, err := svc.manager.ForceRefresh(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("token: %s...\n", cred.Value[:min(12, len(cred.Value))])
	if cred.ExpiresAt != nil {
		fmt.Printf("expires: %s\n", cred.ExpiresAt.Format(time.RFC3339))
	} else {
		fmt.Println("expires: unknown")
	}
	return nil
}

func listPages(ctx context.Context) error {
	svc, err := buildServices(true)
	if err != nil {
		return err
	}

	pages, err := svc.graphClient().ListPages(ctx)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		fmt.Println("no pages visible to this credential")
		return nil
	}
	for _, p := range pages {
		fmt.Printf("%s\t%s\n", p.ID, p.Name)
	}
	return nil
}
