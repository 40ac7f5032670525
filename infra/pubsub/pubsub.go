// Package pubsub builds the watermill transport selected by pubsub.driver.
package pubsub

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/hadlocna/PaperDrop/config"
)

// ConsumerGroup suffixes the AMQP queue bound to each topic.
const ConsumerGroup = "paperdrop-activity"

// Provider exposes one publisher and one subscriber over the same transport.
type Provider interface {
	Publisher() message.Publisher
	Subscriber() message.Subscriber
	Driver() string
	Close() error
}

type provider struct {
	driver string
	pub    message.Publisher
	sub    message.Subscriber
}

func NewProvider(cfg *config.Config, logger watermill.LoggerAdapter) (Provider, error) {
	switch cfg.PubSub.Driver {
	case config.PubSubGoChannel:
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: int64(cfg.Activity.Size),
		}, logger)
		return &provider{driver: cfg.PubSub.Driver, pub: ch, sub: ch}, nil

	case config.PubSubAMQP:
		amqpCfg := amqp.NewDurablePubSubConfig(
			cfg.PubSub.AMQPURI,
			amqp.GenerateQueueNameTopicNameWithSuffix(ConsumerGroup),
		)

		pub, err := amqp.NewPublisher(amqpCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("pubsub: amqp publisher: %w", err)
		}
		sub, err := amqp.NewSubscriber(amqpCfg, logger)
		if err != nil {
			_ = pub.Close()
			return nil, fmt.Errorf("pubsub: amqp subscriber: %w", err)
		}
		return &provider{driver: cfg.PubSub.Driver, pub: pub, sub: sub}, nil

	default:
		return nil, fmt.Errorf("pubsub: unknown driver %q", cfg.PubSub.Driver)
	}
}

func (p *provider) Publisher() message.Publisher   { return p.pub }
func (p *provider) Subscriber() message.Subscriber { return p.sub }
func (p *provider) Driver() string                 { return p.driver }

// Close shuts both sides down. The gochannel driver shares one instance.
func (p *provider) Close() error {
	err := p.pub.Close()
	if any(p.sub) != any(p.pub) {
		err = errors.Join(err, p.sub.Close())
	}
	return err
}
