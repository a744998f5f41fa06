package indexsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	apperrors "marketplace-search/internal/common/errors"
	"marketplace-search/internal/common/config"
	"marketplace-search/internal/common/logger"
	"marketplace-search/internal/models"
	"marketplace-search/pkg/registry"
)

const SourceKafka = "kafka"

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Envelope is the message format of the listing events topic.
type Envelope struct {
	Type      string          `json:"type"`
	Listing   json.RawMessage `json:"listing,omitempty"`
	ListingID string          `json:"listingId,omitempty"`
	Version   int64           `json:"version,omitempty"`
}

// NewKafkaReader opens a consumer-group reader on the listing events topic.
func NewKafkaReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
}

// Consumer applies listing events read from Kafka. Messages are committed
// once applied or once found to be permanently invalid; upstream failures are
// retried in place so the partition never skips an event.
type Consumer struct {
	reader     MessageReader
	handler    *Handler
	decoder    *Decoder
	logger     logger.Logger
	retryDelay time.Duration
	maxDelay   time.Duration
}

func NewConsumer(reader MessageReader, handler *Handler, decoder *Decoder, log logger.Logger) *Consumer {
	return &Consumer{
		reader:     reader,
		handler:    handler,
		decoder:    decoder,
		logger:     log.WithFields(map[string]interface{}{"component": "listing-consumer"}),
		retryDelay: time.Second,
		maxDelay:   30 * time.Second,
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Listening for listing events", nil)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to fetch message", map[string]interface{}{"error": err})
			if !c.sleep(ctx, c.retryDelay) {
				return nil
			}
			continue
		}

		if !c.process(ctx, msg) {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to commit message", map[string]interface{}{
				"offset": msg.Offset,
				"error":  err,
			})
		}
	}
}

// process applies one message, retrying upstream failures. It returns false
// only when ctx ended before the message could be settled.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	delay := c.retryDelay
	for attempt := 1; ; attempt++ {
		err := c.Apply(ctx, msg.Value)
		if err == nil {
			return true
		}

		stdErr := apperrors.Normalize(err)
		fields := map[string]interface{}{
			"partition": msg.Partition,
			"offset":    msg.Offset,
			"key":       string(msg.Key),
			"errorCode": stdErr.Code,
			"error":     err,
		}
		if !stdErr.Retryable {
			c.logger.Warn("Skipping invalid listing event", fields)
			return true
		}

		fields["attempt"] = attempt
		fields["nextRetryIn"] = delay.String()
		c.logger.Warn("Listing event failed, retrying", fields)
		if !c.sleep(ctx, delay) {
			return false
		}
		delay *= 2
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
	}
}

// Apply decodes one envelope and dispatches it to the handler.
func (c *Consumer) Apply(ctx context.Context, value []byte) error {
	ctx = WithSource(ctx, SourceKafka)

	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("decode envelope: %v", err), nil)
	}

	switch env.Type {
	case registry.EventListingCreated, registry.EventListingEdited:
		if len(env.Listing) == 0 {
			return apperrors.NewValidationError("listing is required for "+env.Type, nil)
		}
		listing, err := c.decoder.DecodeListing(env.Type, env.Listing)
		if err != nil {
			return err
		}
		if env.Version > 0 && listing.Version == 0 {
			listing.Version = env.Version
		}
		_, err = c.apply(ctx, env.Type, listing)
		return err

	case registry.EventListingDeleted:
		payload, _ := json.Marshal(DeleteRequest{ListingID: env.ListingID, Version: env.Version})
		req, err := c.decoder.DecodeDelete(payload)
		if err != nil {
			return err
		}
		_, err = c.handler.OnDeleted(ctx, req.ListingID, req.Version)
		return err

	default:
		return apperrors.NewValidationError(fmt.Sprintf("unknown event type %q", env.Type), nil)
	}
}

func (c *Consumer) apply(ctx context.Context, event string, listing *models.Listing) (models.WriteOutcome, error) {
	if event == registry.EventListingCreated {
		return c.handler.OnCreated(ctx, listing)
	}
	return c.handler.OnEdited(ctx, listing)
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
