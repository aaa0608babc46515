package transport

import (
	"errors"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	logger "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Logger"
)

// Publisher is the outbound-only session used for commands.
type Publisher struct {
	*Session
}

func NewPublisher(opts Options, log *logger.Logger) *Publisher {
	return &Publisher{Session: newSession(opts, log.WithComponent("transport.pub"))}
}

// Publish hands payload to the local client and returns without waiting
// for the broker acknowledgement. Only failures the client reports
// synchronously are returned.
func (p *Publisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if p.client == nil || !p.IsConnected() {
		return ErrNotConnected
	}

	token := p.client.Publish(topic, qos, retained, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			if errors.Is(err, mqtt.ErrNotConnected) {
				return ErrNotConnected
			}
			return err
		}
	default:
	}

	p.logger.Logger.Debug().Str("topic", topic).Int("qos", int(qos)).Msg("Published")
	return nil
}
