package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type configLoader func() (*Config, error)

func newTokenCmd(loadConfig configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print today's registration token and register URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			schedule, err := cfg.Schedule()
			if err != nil {
				return err
			}

			token := schedule.TokenFor(time.Now())
			fmt.Fprintf(cmd.OutOrStdout(), "token: %s\nurl:   %s\n", token, registerURL(cfg.FrontendBase, token))
			return nil
		},
	}
}

// newResetCmd clears the queue directly in Redis, for operators who do not
// have the reset password at hand.
func newResetCmd(loadConfig configLoader) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove every reservation from the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("refusing to reset without --force")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			schedule, err := cfg.Schedule()
			if err != nil {
				return err
			}

			redisClient := newRedisClient(cfg)
			defer redisClient.Close()

			queueService := NewQueueService(redisClient, schedule, WithKeyPrefix(cfg.KeyPrefix))
			if err := queueService.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "queue reset")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm the reset")
	return cmd
}
