// Package events publishes bounce tracking notifications on a watermill
// pub/sub.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	TopicRecordBouncesFinished = "btp.record_bounces_finished"
	TopicPurgeCycleFinished    = "btp.purge_cycle_finished"
)

// Metadata keys set on every message.
const (
	MetaPartition = "partition"
	MetaEventType = "event_type"
)

// RecordBouncesFinished is emitted after a closed navigation chain has been
// classified and merged into its partition's store.
type RecordBouncesFinished struct {
	Partition         string    `json:"partition"`
	BrowsingContextID uint64    `json:"browsing_context_id"`
	CloseReason       string    `json:"close_reason"`
	InitialHost       string    `json:"initial_host"`
	FinalHost         string    `json:"final_host"`
	Hops              int       `json:"hops"`
	Candidates        []string  `json:"candidates"`
	Activations       []string  `json:"activations"`
	ClosedAt          time.Time `json:"closed_at"`
}

// PurgeCycleFinished is emitted once per completed purge cycle.
type PurgeCycleFinished struct {
	Partition  string    `json:"partition"`
	Mode       string    `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Purged     []string  `json:"purged"`
	WouldPurge []string  `json:"would_purge,omitempty"`
	Failed     []string  `json:"failed,omitempty"`
	Exempt     []string  `json:"exempt,omitempty"`
	Discarded  []string  `json:"discarded,omitempty"`
}

// Publisher encodes events as JSON messages. A nil *Publisher drops
// everything.
type Publisher struct {
	pub    message.Publisher
	logger *zap.Logger
}

func NewPublisher(pub message.Publisher, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{pub: pub, logger: logger.Named("events")}
}

func (p *Publisher) RecordBouncesFinished(ev RecordBouncesFinished) error {
	return p.publish(TopicRecordBouncesFinished, ev.Partition, ev)
}

func (p *Publisher) PurgeCycleFinished(ev PurgeCycleFinished) error {
	return p.publish(TopicPurgeCycleFinished, ev.Partition, ev)
}

func (p *Publisher) publish(topic, partition string, payload any) error {
	if p == nil || p.pub == nil {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}

	msg := message.NewMessage(uuid.NewString(), body)
	msg.Metadata.Set(MetaPartition, partition)
	msg.Metadata.Set(MetaEventType, topic)

	if err := p.pub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.logger.Debug("published", zap.String("topic", topic), zap.String("message_uuid", msg.UUID))
	return nil
}

// Decode unmarshals a message payload into T.
func Decode[T any](msg *message.Message) (T, error) {
	var v T
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return v, fmt.Errorf("decode message %s: %w", msg.UUID, err)
	}
	return v, nil
}

// NewGoChannel creates the in-process pub/sub used by the manager.
func NewGoChannel(logger *zap.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		NewLoggerAdapter(logger),
	)
}
