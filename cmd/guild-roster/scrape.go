package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/guild-roster/internal/export"
	"github.com/dgnsrekt/guild-roster/internal/gateway"
	"github.com/dgnsrekt/guild-roster/internal/notify"
	"github.com/dgnsrekt/guild-roster/internal/roster"
)

func scrapeCmd() *cobra.Command {
	var (
		batchSize int
		outputDir string
		skipCheck bool
	)

	cmd := &cobra.Command{
		Use:   "scrape GUILD_ID CHANNEL_ID",
		Short: "Export the member ids of a guild",
		Long: `Subscribe to the member list of a channel through the gateway and
page through it until the list is exhausted. Every unique member id is
written to <output.directory>/<GUILD_ID>.csv.

Examples:
  # Scrape with the configured token
  ROSTER_TOKEN=... guild-roster scrape 123456789 987654321

  # Larger pages, custom output directory
  guild-roster scrape --batch-size 100 --output exports 123456789 987654321`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			target := roster.Target{GuildID: args[0], ChannelID: args[1]}

			if batchSize > 0 {
				cfg.Scrape.BatchSize = batchSize
			}
			if outputDir != "" {
				cfg.Output.Directory = outputDir
			}

			// An invalid token must never reach the gateway
			if !skipCheck {
				if err := validateToken(ctx); err != nil {
					return err
				}
			}

			if cfg.Metrics.Addr != "" {
				startMetricsServer(ctx, cfg.Metrics.Addr)
			}

			return runScrape(ctx, target)
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "override scrape.batch_size")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "override output.directory")
	cmd.Flags().BoolVar(&skipCheck, "skip-token-check", false, "do not validate the token over the REST API first")

	return cmd
}

func runScrape(ctx context.Context, target roster.Target) error {
	sink, err := export.NewCSVSink(cfg.Output.Directory, target.GuildID, cfg.Output.Compress)
	if err != nil {
		return err
	}

	dialer := &gateway.Dialer{
		Token:            cfg.Gateway.Token,
		HandshakeTimeout: cfg.Gateway.HandshakeTimeout(),
		Logger:           logger.Named("gateway"),
	}

	scraper, err := roster.New(
		roster.DialFunc(func(ctx context.Context, url string) (roster.Conn, error) {
			conn, err := dialer.Dial(ctx, url)
			if err != nil {
				return nil, err
			}
			return conn, nil
		}),
		sink,
		roster.WithLogger(logger.Named("roster")),
		roster.WithGatewayURL(cfg.Gateway.URL),
		roster.WithPolicy(roster.Policy{
			BatchSize:    cfg.Scrape.BatchSize,
			RequestDelay: cfg.Scrape.RequestDelay(),
			RetryBudget:  cfg.Scrape.RetryCount,
			RetryDelay:   cfg.Scrape.RetryDelay(),
		}),
	)
	if err != nil {
		_ = sink.Discard()
		return err
	}

	logger.Info("scraping guild",
		zap.String("guild", target.GuildID),
		zap.String("channel", target.ChannelID),
		zap.Int("batch_size", cfg.Scrape.BatchSize),
	)

	start := time.Now()
	result, scrapeErr := scraper.Scrape(ctx, target)
	duration := time.Since(start)

	// Whatever was collected is exported, including partial rosters
	if err := sink.Commit(); err != nil {
		logger.Error("failed to commit export", zap.String("path", sink.FinalPath()), zap.Error(err))
		if scrapeErr == nil {
			scrapeErr = err
		}
	}

	fmt.Printf("Total Scraped: %d unique members.\n", len(result.Members))
	fmt.Printf("Scraped IDs saved to %s\n", sink.FinalPath())

	if roster.IsRetryBudgetExhausted(scrapeErr) {
		logger.Warn("scrape incomplete, exported partial roster",
			zap.Int("members", len(result.Members)),
			zap.Int("attempts", result.Attempts),
		)
	}

	// The notification outlives a cancelled scrape
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	report := notify.Report{
		GuildID:  target.GuildID,
		Result:   result,
		Duration: duration,
		Err:      scrapeErr,
	}
	if err := notify.New(cfg.Notify, logger.Named("notify")).Notify(notifyCtx, report); err != nil {
		logger.Warn("failed to send notification", zap.Stringer("outcome", report.Outcome()), zap.Error(err))
	}
	return scrapeErr
}
