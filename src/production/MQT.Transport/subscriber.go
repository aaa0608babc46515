package transport

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	logger "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Logger"
)

// Inbound is one received message, stamped with the local receipt time.
// Ack releases the message at the broker and must be called only once the
// message is durably logged. It is nil for messages not read from a broker.
type Inbound struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
	Ack        func()
}

// Subscriber is the inbound-only session. Messages are queued on a bounded
// channel in arrival order; a full queue blocks the paho router rather
// than dropping.
type Subscriber struct {
	*Session
	filter string
	qos    byte

	inbound  chan Inbound
	done     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

func NewSubscriber(opts Options, filter string, qos byte, buffer int, log *logger.Logger) *Subscriber {
	// arrival order must survive the paho router, and a persistent session
	// lets the broker queue QoS>0 messages across short outages. Acks are
	// sent by the consumer after logging, so a message still queued here at
	// shutdown is redelivered on the next session.
	opts.OrderMatters = true
	opts.CleanSession = false
	opts.AutoAckDisabled = true

	s := &Subscriber{
		Session: newSession(opts, log.WithComponent("transport.sub")),
		filter:  filter,
		qos:     qos,
		inbound: make(chan Inbound, buffer),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	s.onConnect = s.subscribe
	return s
}

// Messages is drained by exactly one ingest loop.
func (s *Subscriber) Messages() <-chan Inbound {
	return s.inbound
}

// Filter returns the subscription topic filter.
func (s *Subscriber) Filter() string {
	return s.filter
}

// subscribe runs on every connect ack, so auto-reconnects resubscribe.
func (s *Subscriber) subscribe(c mqtt.Client) {
	token := c.Subscribe(s.filter, s.qos, s.onMessage)
	if token.Wait() && token.Error() != nil {
		s.logger.Logger.Error().Err(token.Error()).Str("topic", s.filter).Msg("Failed to subscribe to MQTT topic")
		return
	}
	s.setState(StateSubscribed)
	s.logger.Logger.Info().Str("topic", s.filter).Msg("Subscribed")
}

func (s *Subscriber) onMessage(_ mqtt.Client, m mqtt.Message) {
	in := Inbound{
		Topic:      m.Topic(),
		Payload:    m.Payload(),
		ReceivedAt: s.now(),
		Ack:        m.Ack,
	}
	if s.State() == StateSubscribed {
		s.setState(StateReceiving)
	}

	select {
	case s.inbound <- in:
	case <-s.done:
	}
}

// Stop disconnects and releases a callback blocked on a full queue. The
// released message is not acknowledged.
func (s *Subscriber) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.Session.Stop()
}
