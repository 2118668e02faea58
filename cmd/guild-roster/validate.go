package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/guild-roster/internal/api"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that the configured token is accepted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateToken(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("[VALID] Token.")
			return nil
		},
	}
}

// validateToken must pass before any gateway connection is opened.
func validateToken(ctx context.Context) error {
	client := api.NewClient(
		cfg.API.BaseURL,
		cfg.API.RatePerSecond,
		time.Duration(cfg.API.TimeoutSec)*time.Second,
		time.Duration(cfg.API.RetryDelay)*time.Second,
		cfg.API.RetryCount,
		logger,
	)

	err := client.ValidateToken(ctx, cfg.Gateway.Token)
	if errors.Is(err, api.ErrAuthFailed) {
		fmt.Println("[INVALID] Token.")
		return err
	}
	if err != nil {
		return fmt.Errorf("validating token: %w", err)
	}

	logger.Info("token accepted", zap.String("token", api.MaskToken(cfg.Gateway.Token)))
	return nil
}
