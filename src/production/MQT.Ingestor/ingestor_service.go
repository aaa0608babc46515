package mqtingestor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logger "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Logger"
	metrics "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Metrics"
	mqtmodels "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Repository/Interfaces"
	topic "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Topic"
	transport "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Transport"
)

// ErrAppend marks a message that was not written to the log. Such a message
// is left unacknowledged so the broker delivers it again.
var ErrAppend = errors.New("append to message log")

// drainTimeout bounds how long a cancelled loop keeps logging queued
// messages.
const drainTimeout = 10 * time.Second

// Ingestor turns inbound transport messages into log rows and, for
// telemetry, locker state. One Ingestor drains one channel, so messages are
// handled strictly in arrival order.
type Ingestor struct {
	scheme  topic.Scheme
	log     interfaces.MessageLog
	states  interfaces.LockerStateRepository
	metrics *metrics.Metrics
	logger  *logger.Logger
	clock   func() time.Time

	drainTimeout time.Duration
}

func New(scheme topic.Scheme, log interfaces.MessageLog, states interfaces.LockerStateRepository, m *metrics.Metrics, lg *logger.Logger) *Ingestor {
	return &Ingestor{
		scheme:  scheme,
		log:     log,
		states:  states,
		metrics: m,
		logger:  lg.WithComponent("ingestor"),
		clock:   time.Now,

		drainTimeout: drainTimeout,
	}
}

// Run handles messages until ctx is done or in is closed. A failed message
// is logged and skipped; it never stops the loop. On cancel, messages
// already queued on in are still handled before Run returns.
func (i *Ingestor) Run(ctx context.Context, in <-chan transport.Inbound) error {
	i.logger.Info("Ingest loop started")
	for {
		select {
		case <-ctx.Done():
			i.drain(in)
			i.logger.Info("Ingest loop stopped")
			return nil
		case msg, ok := <-in:
			if !ok {
				i.logger.Info("Inbound channel closed")
				return nil
			}
			i.process(ctx, msg)
		}
	}
}

// drain handles whatever is queued without waiting for more. It runs on a
// fresh context since the loop's own is already cancelled.
func (i *Ingestor) drain(in <-chan transport.Inbound) {
	ctx, cancel := context.WithTimeout(context.Background(), i.drainTimeout)
	defer cancel()

	drained := 0
	for {
		select {
		case msg, ok := <-in:
			if !ok {
				i.logger.Logger.Info().Int("drained", drained).Msg("Inbound channel closed during drain")
				return
			}
			i.process(ctx, msg)
			drained++
		default:
			if drained > 0 {
				i.logger.Logger.Info().Int("drained", drained).Msg("Drained queued messages")
			}
			return
		}
	}
}

// process handles one message and acknowledges it once it is in the log.
// A failed state write still acks: the message itself is durable.
func (i *Ingestor) process(ctx context.Context, msg transport.Inbound) {
	_, err := i.Handle(ctx, msg)
	if err != nil {
		i.logger.Logger.Error().Err(err).Str("topic", msg.Topic).Msg("Failed to ingest message")
	}
	if errors.Is(err, ErrAppend) {
		return
	}
	if msg.Ack != nil {
		msg.Ack()
	}
}

// Handle appends msg to the log and, for telemetry with a locker id,
// replaces that locker's state. The append always happens first; a state
// write is never skipped because of an unparseable payload.
func (i *Ingestor) Handle(ctx context.Context, msg transport.Inbound) (int64, error) {
	ts := msg.ReceivedAt.Unix()
	class := i.scheme.Classify(msg.Topic)
	payload := storableText(msg.Payload)

	id, err := i.log.Append(ctx, interfaces.NewMessage{
		IngestTimestamp: ts,
		Topic:           msg.Topic,
		Payload:         payload,
		Kind:            class.Kind,
		LockerID:        class.LockerID,
	})
	if err != nil {
		i.metrics.AppendFailed()
		return 0, fmt.Errorf("%w %s: %w", ErrAppend, msg.Topic, err)
	}
	i.metrics.MessageIngested(string(class.Kind), i.clock().Sub(msg.ReceivedAt).Seconds())

	if class.Kind != mqtmodels.KindTelemetry || class.LockerID == nil {
		return id, nil
	}

	lockerID := *class.LockerID
	status, parsed := ParseStatus(payload)
	if !parsed {
		i.metrics.TelemetryUnparsed()
		i.logger.WithLocker(lockerID).Logger.Debug().Int64("message_id", id).Msg("Telemetry payload is not a JSON object")
	}

	err = i.states.Upsert(ctx, mqtmodels.LockerState{
		LockerID:   lockerID,
		TsUpdate:   ts,
		Door:       status.Door,
		Relay:      status.Relay,
		RawPayload: payload,
	})
	if err != nil {
		i.metrics.StateFailed()
		return id, fmt.Errorf("upsert state for %s: %w", lockerID, err)
	}
	i.metrics.StateUpserted()
	return id, nil
}

// storableText makes a payload safe for every store's text column. Invalid
// UTF-8 and NUL bytes, which Postgres TEXT rejects, become U+FFFD.
func storableText(b []byte) string {
	s := strings.ToValidUTF8(string(b), "\uFFFD")
	return strings.ReplaceAll(s, "\x00", "\uFFFD")
}
