// Package transport owns the two MQTT sessions of the locker backend.
//
// Publishing and subscribing never share a connection. Each Session keeps
// its own connection state, written only by its paho handlers and read
// through State and IsConnected.
package transport

import (
	"errors"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	config "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Config"
	logger "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Logger"
)

// ConnState is the lifecycle of one broker session.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateSubscribed
	StateReceiving
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StateReceiving:
		return "receiving"
	default:
		return "unknown"
	}
}

var ErrNotConnected = errors.New("mqtt session not connected")

// Options is the broker-facing part of a session.
type Options struct {
	BrokerURL            string
	ClientID             string
	Username             string
	Password             string
	UseTLS               bool
	CACertPath           string
	KeepAlive            time.Duration
	PingTimeout          time.Duration
	MaxReconnectInterval time.Duration
	CleanSession         bool
	OrderMatters         bool
	AutoAckDisabled      bool
}

// OptionsFromConfig builds session options for clientID.
func OptionsFromConfig(cfg *config.Config, clientID string) Options {
	return Options{
		BrokerURL:            cfg.GetMQTTBrokerURL(),
		ClientID:             clientID,
		Username:             cfg.MQTT.BrokerUser,
		Password:             cfg.MQTT.BrokerPass,
		UseTLS:               cfg.MQTT.UseTLS,
		CACertPath:           cfg.MQTT.CACertPath,
		KeepAlive:            cfg.MQTT.KeepAlive,
		PingTimeout:          cfg.MQTT.PingTimeout,
		MaxReconnectInterval: cfg.MQTT.MaxReconnectInterval,
		CleanSession:         true,
	}
}

// Session wraps a single paho client.
type Session struct {
	opts   Options
	client mqtt.Client
	state  atomic.Int32
	logger *logger.Logger

	onState   func(ConnState)
	onConnect func(mqtt.Client)
}

func newSession(opts Options, log *logger.Logger) *Session {
	return &Session{opts: opts, logger: log}
}

// OnStateChange registers an observer, e.g. a metrics gauge. Call before Start.
func (s *Session) OnStateChange(fn func(ConnState)) {
	s.onState = fn
}

// State returns the current connection state.
func (s *Session) State() ConnState {
	return ConnState(s.state.Load())
}

// IsConnected reports whether the broker has acknowledged the connection.
func (s *Session) IsConnected() bool {
	return s.State() >= StateConnected
}

func (s *Session) setState(state ConnState) {
	prev := ConnState(s.state.Swap(int32(state)))
	if prev == state {
		return
	}
	s.logger.Logger.Debug().Str("from", prev.String()).Str("to", state.String()).Msg("MQTT session state changed")
	if s.onState != nil {
		s.onState(state)
	}
}

func (s *Session) clientOptions() (*mqtt.ClientOptions, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(s.opts.BrokerURL).
		SetClientID(s.opts.ClientID).
		SetOrderMatters(s.opts.OrderMatters).
		SetKeepAlive(s.opts.KeepAlive).
		SetPingTimeout(s.opts.PingTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(s.opts.MaxReconnectInterval).
		SetCleanSession(s.opts.CleanSession).
		SetAutoAckDisabled(s.opts.AutoAckDisabled)

	if s.opts.Username != "" {
		opts.SetUsername(s.opts.Username)
		opts.SetPassword(s.opts.Password)
	}

	if s.opts.UseTLS {
		tlsCfg, err := tlsConfig(s.opts.CACertPath)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.OnConnect = s.handleConnect
	opts.OnConnectionLost = s.handleConnectionLost
	opts.OnReconnecting = func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		s.setState(StateConnecting)
	}
	return opts, nil
}

func (s *Session) handleConnect(c mqtt.Client) {
	s.setState(StateConnected)
	s.logger.Logger.Info().Str("broker", s.opts.BrokerURL).Str("client_id", s.opts.ClientID).Msg("MQTT connected")
	if s.onConnect != nil {
		s.onConnect(c)
	}
}

func (s *Session) handleConnectionLost(_ mqtt.Client, err error) {
	s.setState(StateDisconnected)
	s.logger.Logger.Error().Err(err).Msg("MQTT connection lost")
}

// Start begins connecting in the background. Reconnection is left to the
// paho client; Start does not wait for the broker.
func (s *Session) Start() error {
	opts, err := s.clientOptions()
	if err != nil {
		return err
	}

	s.setState(StateConnecting)
	s.client = mqtt.NewClient(opts)
	s.client.Connect()
	return nil
}

// WaitConnected polls until connected or timeout elapses.
func (s *Session) WaitConnected(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for !s.IsConnected() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(50 * time.Millisecond)
	}
	return true
}

// Stop disconnects, allowing 500ms for in-flight work.
func (s *Session) Stop() {
	if s.client != nil {
		s.client.Disconnect(500)
	}
	s.setState(StateDisconnected)
}
