// Package ingest stores records delivered over the message bus.
//
// A message names a type and carries one record payload. It may be encoded
// as JSON or CBOR. Records are written as the system identity, so ingest
// grows schemas the same way an administrator's writes do.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/alfredjeanlab/moisturizer/internal/events"
	"github.com/alfredjeanlab/moisturizer/internal/model"
	"github.com/alfredjeanlab/moisturizer/internal/registry"
)

// DefaultSubject is the subject ingest listens on when none is configured.
const DefaultSubject = "moist.ingest"

// QueueGroup load-balances ingest across server replicas.
const QueueGroup = "moist-ingest"

// handleTimeout bounds the storage work for one message.
const handleTimeout = 30 * time.Second

// Message is one ingest request.
type Message struct {
	TypeID string         `json:"type_id" cbor:"type_id"`
	Data   map[string]any `json:"data" cbor:"data"`
}

var cborDecMode cbor.DecMode

func init() {
	var err error
	cborDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("ingest: cbor decode mode: %v", err))
	}
}

// Decode parses a message. Valid JSON is decoded as JSON with numbers kept
// as json.Number; anything else is decoded as CBOR.
func Decode(data []byte) (Message, error) {
	var msg Message
	if json.Valid(data) {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&msg); err != nil {
			return Message{}, model.WrapError(model.ErrValidationFailed, "", fmt.Errorf("decoding json message: %w", err))
		}
	} else if err := cborDecMode.Unmarshal(data, &msg); err != nil {
		return Message{}, model.WrapError(model.ErrValidationFailed, "", fmt.Errorf("decoding cbor message: %w", err))
	}

	if msg.TypeID == "" {
		return Message{}, model.NewError(model.ErrValidationFailed, "", "message has no type_id")
	}
	if msg.Data == nil {
		return Message{}, model.NewError(model.ErrValidationFailed, msg.TypeID, "message has no data")
	}
	return msg, nil
}

// Consumer writes ingested records through the type registry.
type Consumer struct {
	reg *registry.Registry
	pub events.Publisher
}

// New returns a consumer. A nil publisher disables events.
func New(reg *registry.Registry, pub events.Publisher) *Consumer {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	return &Consumer{reg: reg, pub: pub}
}

// Start subscribes the consumer to subject in the ingest queue group and
// returns a function that drains the subscription.
func (c *Consumer) Start(sub events.QueueSubscriber, subject string) (func(), error) {
	if subject == "" {
		subject = DefaultSubject
	}
	stop, err := sub.Handle(subject, QueueGroup, c.handleMessage)
	if err != nil {
		return nil, err
	}
	slog.Info("ingest consumer started", "subject", subject, "queue", QueueGroup)
	return stop, nil
}

func (c *Consumer) handleMessage(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	_, err := c.Ingest(ctx, data)
	return err
}

// Ingest decodes data and stores the record it carries. Failures are
// logged and published on the ingest failure topic before being returned.
func (c *Consumer) Ingest(ctx context.Context, data []byte) (*model.Record, error) {
	msg, err := Decode(data)
	if err != nil {
		c.fail(ctx, "", data, err)
		return nil, err
	}
	rec, err := c.store(ctx, msg)
	if err != nil {
		c.fail(ctx, msg.TypeID, data, err)
		return nil, err
	}
	return rec, nil
}

func (c *Consumer) store(ctx context.Context, msg Message) (*model.Record, error) {
	m, err := c.reg.InferAndMaybeMigrate(ctx, msg.TypeID, msg.Data)
	if err != nil {
		return nil, err
	}
	rec, err := m.Create(ctx, msg.Data)
	if err != nil {
		return nil, err
	}
	evt := events.RecordCreated{TypeID: msg.TypeID, Record: rec}
	if err := c.pub.Publish(ctx, events.TopicRecordCreated, evt); err != nil {
		slog.Warn("publishing event failed", "topic", events.TopicRecordCreated, "error", err)
	}
	slog.Debug("record ingested", "type", msg.TypeID, "id", rec.ID(), "by", model.SystemIdentity.ID)
	return rec, nil
}

func (c *Consumer) fail(ctx context.Context, typeID string, data []byte, err error) {
	detail := model.Describe(err)
	if typeID == "" {
		typeID = detail.TypeID
	}
	slog.Error("ingest failed", "type", typeID, "error_code", detail.Kind, "error", err)

	evt := events.IngestFailed{TypeID: typeID, Reason: detail.Message, Kind: string(detail.Kind), Data: data}
	if perr := c.pub.Publish(ctx, events.TopicIngestFailed, evt); perr != nil {
		slog.Error("publishing ingest failure", "error", errors.Join(err, perr))
	}
}
