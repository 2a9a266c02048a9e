// Package devicelink bridges the greenhouse controller's MQTT topics and the
// realtime store.
package devicelink

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/greenhouse"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/rtdb"
)

// Config describes the broker connection.
type Config struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// Topics under the prefix.
func (c Config) TelemetryTopic() string { return c.topic("telemetry") }
func (c Config) StatusTopic() string    { return c.topic("status") }
func (c Config) ControlsTopic() string  { return c.topic("controls") }

func (c Config) topic(name string) string {
	prefix := strings.TrimSuffix(c.TopicPrefix, "/")
	if prefix == "" {
		prefix = "agrimind"
	}
	return prefix + "/" + name
}

type publishFunc func(topic string, retained bool, payload []byte) error

// Link mirrors device telemetry into the store and store controls back to the
// device.
type Link struct {
	cfg     Config
	store   rtdb.Store
	log     *zap.Logger
	now     func() time.Time
	publish publishFunc
}

// New returns a link; Run connects it.
func New(cfg Config, store rtdb.Store, logger *zap.Logger) *Link {
	return &Link{
		cfg:   cfg,
		store: store,
		log:   logger.Named("devicelink"),
		now:   time.Now,
	}
}

// Run connects to the broker and bridges until ctx is done. The client
// reconnects on its own after the first successful connection.
func (l *Link) Run(ctx context.Context) error {
	client := mqtt.NewClient(l.clientOptions())
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to MQTT broker: %w", token.Error())
	}
	l.log.Info("connected to MQTT broker", zap.String("broker", l.cfg.BrokerURL))
	defer func() {
		client.Disconnect(250)
		l.log.Info("disconnected from MQTT broker")
	}()

	l.publish = func(topic string, retained bool, payload []byte) error {
		t := client.Publish(topic, l.cfg.QoS, retained, payload)
		if !t.WaitTimeout(5 * time.Second) {
			return fmt.Errorf("publish %s: timed out", topic)
		}
		return t.Error()
	}

	cancel := l.store.Subscribe(greenhouse.PathControls, func(snap rtdb.Snapshot) {
		if err := l.PublishControls(snap); err != nil {
			l.log.Warn("publish controls failed", zap.Error(err))
		}
	}, func(err error) {
		l.log.Warn("controls read failed", zap.Error(err))
	})
	defer cancel()

	<-ctx.Done()
	return nil
}

func (l *Link) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(l.cfg.BrokerURL)
	opts.SetClientID(l.cfg.ClientID)

	if strings.HasPrefix(l.cfg.BrokerURL, "ssl://") || strings.HasPrefix(l.cfg.BrokerURL, "wss://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	if l.cfg.Username != "" {
		opts.SetUsername(l.cfg.Username)
		opts.SetPassword(l.cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		l.log.Warn("MQTT connection lost", zap.Error(err))
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		l.log.Info("reconnecting to MQTT broker")
	})
	// Subscriptions are not kept across reconnects with a clean session.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		l.subscribe(c)
	})
	return opts
}

func (l *Link) subscribe(c mqtt.Client) {
	handlers := map[string]func([]byte) error{
		l.cfg.TelemetryTopic(): l.HandleTelemetry,
		l.cfg.StatusTopic():    l.HandleStatus,
	}
	for topic, handle := range handlers {
		handle := handle
		token := c.Subscribe(topic, l.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			if err := handle(msg.Payload()); err != nil {
				l.log.Warn("dropping device message", zap.String("topic", msg.Topic()), zap.Error(err))
			}
		})
		if token.Wait() && token.Error() != nil {
			l.log.Error("subscribe failed", zap.String("topic", topic), zap.Error(token.Error()))
			continue
		}
		l.log.Info("subscribed", zap.String("topic", topic))
	}
}

// HandleTelemetry writes a telemetry payload into the store.
func (l *Link) HandleTelemetry(payload []byte) error {
	t, err := ParseTelemetry(payload, l.now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.store.Update(ctx, t.Updates()); err != nil {
		return fmt.Errorf("write telemetry: %w", err)
	}
	l.log.Debug("telemetry stored", zap.Time("ts", t.Timestamp))
	return nil
}

// HandleStatus records the device's online flag.
func (l *Link) HandleStatus(payload []byte) error {
	online, err := ParseStatus(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.store.Set(ctx, greenhouse.PathDeviceOnline, online); err != nil {
		return fmt.Errorf("write %s: %w", greenhouse.PathDeviceOnline, err)
	}
	l.log.Info("device status", zap.Bool("online", online))
	return nil
}

// PublishControls sends the control flags as a retained message so the device
// picks them up on reconnect.
func (l *Link) PublishControls(snap rtdb.Snapshot) error {
	if l.publish == nil {
		return fmt.Errorf("not connected")
	}
	payload, err := json.Marshal(greenhouse.DecodeControls(snap))
	if err != nil {
		return err
	}
	return l.publish(l.cfg.ControlsTopic(), true, payload)
}
