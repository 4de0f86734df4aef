package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/logging"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/metrics"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/models"
)

// JetStream is a Queue backed by a NATS JetStream work queue. The stream's
// AckWait implements the visibility window and MaxAge the retention bound;
// dead-lettering happens in this layer so items land verbatim on a second
// stream instead of being silently dropped by the broker.
type JetStream struct {
	policy Policy
	log    *logging.Logger

	conn     *nats.Conn
	js       jetstream.JetStream
	stream   jetstream.Stream
	dlq      jetstream.Stream
	consumer jetstream.Consumer

	name       string
	subject    string
	dlqSubject string
}

// JetStreamConfig holds broker and naming configuration for a JetStream
// queue.
type JetStreamConfig struct {
	URL           string
	ClientName    string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration

	Stream   string
	Subject  string
	Consumer string
}

// NewJetStream connects to NATS and creates or updates the primary stream,
// the dead-letter stream, and the durable consumer.
func NewJetStream(ctx context.Context, cfg JetStreamConfig, policy Policy, log *logging.Logger) (*JetStream, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.ClientName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	q := &JetStream{
		policy:     policy,
		log:        log,
		conn:       conn,
		js:         js,
		name:       cfg.Stream,
		subject:    cfg.Subject,
		dlqSubject: cfg.Subject + ".dlq",
	}

	q.stream, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.Subject},
		MaxAge:    policy.Retention,
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create stream %s: %w", cfg.Stream, err)
	}

	q.dlq, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Stream + "_DLQ",
		Subjects:  []string{q.dlqSubject},
		MaxAge:    policy.Retention,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create dead-letter stream: %w", err)
	}

	// MaxDeliver stays unset: the receive budget is enforced in Receive,
	// where items past it are copied to the dead-letter stream and termed.
	// A broker-side cap stops redelivery once it is reached, which would
	// strand a message whose dead-letter publish failed on its final
	// delivery; without the cap the message comes back after AckWait and
	// the move is retried.
	q.consumer, err = q.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          cfg.Consumer,
		Durable:       cfg.Consumer,
		FilterSubject: cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       policy.VisibilityWindow,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create consumer %s: %w", cfg.Consumer, err)
	}

	return q, nil
}

// Enqueue publishes a new work item to the primary stream.
func (q *JetStream) Enqueue(ctx context.Context, kind string, payload []byte) (*models.WorkItem, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	item := models.WorkItem{
		ID:         id.String(),
		Kind:       kind,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("marshal work item: %w", err)
	}

	if _, err := q.js.Publish(ctx, q.subject, data); err != nil {
		return nil, fmt.Errorf("%w: publish: %v", ErrUnavailable, err)
	}

	metrics.ItemsEnqueued.WithLabelValues(q.name).Inc()
	return &item, nil
}

// fetchSlice bounds a single broker fetch. Fetch has no context
// parameter, so Receive polls in slices this long with a cancellation
// check between them; shutdown waits at most one slice, not the full
// receive wait.
const fetchSlice = time.Second

// Receive fetches up to maxBatch items, long-polling up to wait. Items past
// the receive budget are moved to the dead-letter stream and terminated.
func (q *JetStream) Receive(ctx context.Context, maxBatch int, wait time.Duration) ([]*Delivery, error) {
	if maxBatch <= 0 {
		maxBatch = 1
	}

	deadline := time.Now().Add(wait)
	for {
		slice := time.Until(deadline)
		if slice > fetchSlice {
			slice = fetchSlice
		}
		if slice <= 0 {
			return nil, nil
		}

		batch, err := q.consumer.Fetch(maxBatch, jetstream.FetchMaxWait(slice))
		if err != nil {
			return nil, fmt.Errorf("%w: fetch: %v", ErrUnavailable, err)
		}

		deliveries := q.drainBatch(ctx, batch)
		if len(deliveries) > 0 {
			return deliveries, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
}

// drainBatch decodes a fetched batch into deliveries, dead-lettering
// items past the receive budget along the way.
func (q *JetStream) drainBatch(ctx context.Context, batch jetstream.MessageBatch) []*Delivery {
	var deliveries []*Delivery
	for msg := range batch.Messages() {
		var item models.WorkItem
		if err := json.Unmarshal(msg.Data(), &item); err != nil {
			// Malformed items cannot be processed; drop them
			// without redelivery.
			q.log.Warn("dropping unparseable work item", "error", err)
			_ = msg.Term()
			continue
		}

		if meta, err := msg.Metadata(); err == nil {
			item.DeliveryCount = int(meta.NumDelivered)
		} else {
			item.DeliveryCount++
		}

		if item.DeliveryCount > q.policy.MaxReceiveCount {
			if err := q.deadLetter(ctx, item); err != nil {
				// Leave the message unacked so the move is
				// retried on the next redelivery.
				q.log.Error("dead-letter publish failed", "item_id", item.ID, "error", err)
				continue
			}
			_ = msg.Term()
			continue
		}

		deliveries = append(deliveries, &Delivery{Item: item, receipt: msg})
	}

	if err := batch.Error(); err != nil {
		q.log.Warn("fetch completed with error", "error", err)
	}

	return deliveries
}

func (q *JetStream) deadLetter(ctx context.Context, item models.WorkItem) error {
	dl := DeadLetter{
		Item:    item,
		Reason:  "max_receive_count_exceeded",
		MovedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	if _, err := q.js.Publish(ctx, q.dlqSubject, data); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	metrics.ItemsDeadLettered.WithLabelValues(q.name).Inc()
	q.log.Warn("work item dead-lettered",
		"item_id", item.ID,
		"kind", item.Kind,
		"delivery_count", item.DeliveryCount)
	return nil
}

// Ack acknowledges the underlying JetStream message.
func (q *JetStream) Ack(_ context.Context, d *Delivery) error {
	msg, ok := d.receipt.(jetstream.Msg)
	if !ok {
		return fmt.Errorf("delivery does not belong to this queue")
	}
	if err := msg.Ack(); err != nil {
		return fmt.Errorf("%w: ack: %v", ErrUnavailable, err)
	}
	return nil
}

// DeadLetters reads items from the dead-letter stream with an ephemeral
// consumer.
func (q *JetStream) DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}

	consumer, err := q.dlq.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject: q.dlqSubject,
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create dead-letter consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("fetch dead letters: %w", err)
	}

	var letters []DeadLetter
	for msg := range batch.Messages() {
		var dl DeadLetter
		if err := json.Unmarshal(msg.Data(), &dl); err != nil {
			q.log.Warn("skipping unparseable dead letter", "error", err)
			continue
		}
		letters = append(letters, dl)
	}
	return letters, nil
}

// PurgeDeadLetters removes all messages from the dead-letter stream.
func (q *JetStream) PurgeDeadLetters(ctx context.Context) error {
	if err := q.dlq.Purge(ctx); err != nil {
		return fmt.Errorf("purge dead-letter stream: %w", err)
	}
	return nil
}

// Close drains the NATS connection.
func (q *JetStream) Close() error {
	return q.conn.Drain()
}
