// Package commands publishes unlock commands to lockers.
//
// Dispatch is fire-and-forget: success means the local MQTT client accepted
// the message, not that the locker opened. Nothing about a dispatched
// command is retained.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	config "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Config"
	logger "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Logger"
	metrics "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Metrics"
	mqtmodels "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Models"
	topic "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Topic"
	transport "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Transport"
)

var (
	ErrInvalidDuration      = fmt.Errorf("duration_ms must be between %d and %d", config.MinUnlockMs, config.MaxUnlockMs)
	ErrInvalidLocker        = errors.New("locker id must be a single non-empty topic segment")
	ErrTransportUnavailable = errors.New("mqtt publisher not connected")
)

// CommandQoS is fixed: commands are delivered at least once and never
// deduplicated.
const CommandQoS byte = 1

// Publisher is the outbound half of the transport.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	IsConnected() bool
}

type Dispatcher struct {
	publisher Publisher
	scheme    topic.Scheme
	metrics   *metrics.Metrics
	logger    *logger.Logger
	now       func() time.Time
}

func NewDispatcher(p Publisher, scheme topic.Scheme, m *metrics.Metrics, lg *logger.Logger) *Dispatcher {
	return &Dispatcher{
		publisher: p,
		scheme:    scheme,
		metrics:   m,
		logger:    lg.WithComponent("dispatcher"),
		now:       time.Now,
	}
}

// Dispatch validates and publishes one unlock command. An empty cmdID is
// replaced with the current Unix second, which is not unique across calls
// made within the same second.
func (d *Dispatcher) Dispatch(lockerID string, durationMs int, cmdID string) (*mqtmodels.DispatchResult, error) {
	if durationMs < config.MinUnlockMs || durationMs > config.MaxUnlockMs {
		d.metrics.Dispatch(metrics.OutcomeInvalidDuration)
		return nil, ErrInvalidDuration
	}
	if lockerID == "" || strings.ContainsAny(lockerID, "/+#") {
		d.metrics.Dispatch(metrics.OutcomeInvalidLocker)
		return nil, ErrInvalidLocker
	}
	if !d.publisher.IsConnected() {
		d.metrics.Dispatch(metrics.OutcomeUnavailable)
		return nil, ErrTransportUnavailable
	}

	if cmdID == "" {
		cmdID = strconv.FormatInt(d.now().Unix(), 10)
	}
	cmd := mqtmodels.UnlockCommand{
		CmdID:      cmdID,
		LockerID:   lockerID,
		Action:     mqtmodels.ActionUnlock,
		DurationMs: durationMs,
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		d.metrics.Dispatch(metrics.OutcomeError)
		return nil, err
	}

	t := d.scheme.Command(lockerID)
	if err := d.publisher.Publish(t, CommandQoS, false, payload); err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			d.metrics.Dispatch(metrics.OutcomeUnavailable)
			return nil, ErrTransportUnavailable
		}
		d.metrics.Dispatch(metrics.OutcomeError)
		return nil, fmt.Errorf("publish %s: %w", t, err)
	}

	d.metrics.Dispatch(metrics.OutcomeSent)
	d.logger.WithLocker(lockerID).Logger.Info().Str("cmd_id", cmdID).Int("duration_ms", durationMs).Msg("Unlock dispatched")
	return &mqtmodels.DispatchResult{Sent: true, Topic: t, Payload: cmd}, nil
}

// Connected reports the publisher session state.
func (d *Dispatcher) Connected() bool {
	return d.publisher.IsConnected()
}
