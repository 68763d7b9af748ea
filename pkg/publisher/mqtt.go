package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/emonview/emonview/pkg/log"
	"github.com/emonview/emonview/pkg/myelectric"
	"github.com/emonview/emonview/pkg/types"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/levenlabs/go-lflag"
)

const (
	defaultTopicPrefix = "emonview"
	publishTimeout     = 10 * time.Second
	// at least once, brokers dedupe retained state anyway
	publishQoS = 1
)

// Config describes the MQTT broker to publish to. An empty Broker disables
// publishing.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	ClientID    string
}

// Enabled returns true if a broker was configured.
func (c Config) Enabled() bool {
	return c.Broker != ""
}

// Configured registers the MQTT flags. The returned Config is filled in once
// flags are parsed.
func Configured() *Config {
	broker := lflag.String("mqtt-broker", "", "MQTT broker host:port to publish readings to (disabled if empty)")
	username := lflag.String("mqtt-username", "", "MQTT username")
	password := lflag.String("mqtt-password", "", "MQTT password")
	prefix := lflag.String("mqtt-topic-prefix", defaultTopicPrefix, "Prefix of every published topic")
	clientID := lflag.String("mqtt-client-id", "emonview", "MQTT client id")

	c := &Config{}
	lflag.Do(func() {
		c.Broker = *broker
		c.Username = *username
		c.Password = *password
		c.TopicPrefix = strings.TrimSuffix(*prefix, "/")
		c.ClientID = *clientID
	})
	return c
}

// Source is what the publisher reads from. *myelectric.ViewModel implements
// it.
type Source interface {
	Title() *myelectric.Stream[string]
	Data() *myelectric.Stream[types.MyElectricData]
	UpdatedAt() time.Time
}

// Message is a single MQTT publish.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

type statePayload struct {
	Title      string    `json:"title"`
	PowerNow   float64   `json:"powerNow"`
	UsageToday float64   `json:"usageToday"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Messages builds the messages for one refresh: the current power in watts,
// today's usage in kWh and a JSON state document combining both.
func Messages(prefix, title string, data types.MyElectricData, updatedAt time.Time) ([]Message, error) {
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	state, err := json.Marshal(statePayload{
		Title:      title,
		PowerNow:   data.PowerNow,
		UsageToday: data.UsageToday,
		UpdatedAt:  updatedAt.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding state payload: %w", err)
	}
	return []Message{
		{
			Topic:    prefix + "/power",
			Payload:  []byte(strconv.FormatFloat(data.PowerNow, 'f', 0, 64)),
			Retained: true,
		},
		{
			Topic:    prefix + "/usage_today",
			Payload:  []byte(strconv.FormatFloat(data.UsageToday, 'f', 3, 64)),
			Retained: true,
		},
		{
			Topic:    prefix + "/state",
			Payload:  state,
			Retained: true,
		},
	}, nil
}

// MQTT publishes every successful refresh to an MQTT broker.
type MQTT struct {
	client mqtt.Client
	prefix string
}

// NewMQTT connects to the broker described by cfg.
func NewMQTT(cfg Config) (*MQTT, error) {
	if !cfg.Enabled() {
		return nil, errors.New("mqtt broker address is required")
	}

	opts := mqtt.NewClientOptions()
	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(publishTimeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to mqtt broker: %w", token.Error())
	}
	return newMQTT(client, cfg.TopicPrefix), nil
}

func newMQTT(client mqtt.Client, prefix string) *MQTT {
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	return &MQTT{client: client, prefix: prefix}
}

// Publish sends msgs, stopping at the first failure.
func (p *MQTT) Publish(ctx context.Context, msgs []Message) error {
	for _, m := range msgs {
		token := p.client.Publish(m.Topic, publishQoS, m.Retained, m.Payload)
		select {
		case <-token.Done():
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(publishTimeout):
			return fmt.Errorf("timed out publishing to %s", m.Topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("publishing to %s: %w", m.Topic, err)
		}
	}
	return nil
}

// Run publishes the data of src until ctx is done. Only the latest data is
// kept while a publish is in progress.
func (p *MQTT) Run(ctx context.Context, src Source) {
	ctx = log.Component(ctx, "publisher")

	pending := make(chan types.MyElectricData, 1)
	unsubscribe := src.Data().Subscribe(func(d types.MyElectricData) {
		for {
			select {
			case pending <- d:
				return
			default:
			}
			select {
			case <-pending:
			default:
			}
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-pending:
			title, _ := src.Title().Latest()
			msgs, err := Messages(p.prefix, title, d, src.UpdatedAt())
			if err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "failed to build mqtt messages", slog.Any("error", err))
				continue
			}
			if err := p.Publish(ctx, msgs); err != nil {
				log.Ctx(ctx).WarnContext(ctx, "failed to publish to mqtt", slog.Any("error", err))
				continue
			}
			log.Ctx(ctx).DebugContext(ctx, "published to mqtt", slog.String("prefix", p.prefix))
		}
	}
}

// Close disconnects from the broker.
func (p *MQTT) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
