package kafkaconsumer

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"

	obs "github.com/mohammed-shakir/route-cache/internal/core/observability"
)

type messageProcessor func(context.Context, *sarama.ConsumerMessage) error

// groupHandler processes a claim in order and marks each offset only after its
// purge succeeded, so a failed message is redelivered.
type groupHandler struct {
	process messageProcessor
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("claim context done: %w", ctx.Err())
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.process(ctx, msg); err != nil {
				return fmt.Errorf("process failed (topic=%s, part=%d, off=%d): %w",
					msg.Topic, msg.Partition, msg.Offset, err)
			}
			sess.MarkMessage(msg, "")
			obs.SetConsumerLag(msg.Partition, claim.HighWaterMarkOffset()-msg.Offset-1)
		}
	}
}
