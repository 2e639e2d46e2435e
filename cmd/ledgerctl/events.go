package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"kart-reconciler/internal/messaging"

	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
)

func eventsCmd() *cobra.Command {
	var (
		groupID   string
		fromStart bool
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail order reconciled events from Kafka",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if len(cfg.Kafka.Brokers) == 0 {
				return errors.New("KAFKA_BROKERS is not configured")
			}

			var opts []messaging.ConsumerOption
			if fromStart {
				opts = append(opts, messaging.WithStartOffset(kafka.FirstOffset))
			}

			consumer := messaging.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, groupID, opts...)
			defer consumer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info().Str("topic", cfg.Kafka.Topic).Str("group_id", groupID).Msg("tailing events")

			err = consumer.Consume(ctx, func(_ context.Context, key, payload []byte) error {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", key, payload)
				return err
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&groupID, "group", "ledgerctl", "consumer group id")
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "read the topic from the first offset")

	return cmd
}
