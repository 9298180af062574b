// Package ingest bridges constrained devices onto the pipeline.
// Battery or microcontroller monitors that cannot hold a WebSocket
// publish their chunks over MQTT instead; the bridge subscribes the
// device topics and republishes the standard chunk envelope to the
// bus, where the same inference path picks it up.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/YuvDwi/Cradle/errors"
	"github.com/YuvDwi/Cradle/message"
	"github.com/YuvDwi/Cradle/metric"
)

const (
	serviceName = "ingest"

	defaultClientID    = "cradle-ingest"
	defaultTopicPrefix = "cradle"
	defaultAudioTopic  = "audio-stream"
	defaultVideoTopic  = "video-stream"

	connectTimeout = 10 * time.Second
	keepAlive      = 60 * time.Second
	pingTimeout    = 10 * time.Second

	// disconnectQuiesce is how long Disconnect waits for in-flight
	// work, in milliseconds per the paho API.
	disconnectQuiesce = 250
)

// Bus is the publish edge chunk envelopes go out on. *natsclient.Client
// satisfies it.
type Bus interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// devicePayload is the JSON body constrained devices publish. Data is
// base64 on the wire; encoding/json decodes it on unmarshal.
type devicePayload struct {
	Data       []byte  `json:"data"`
	SampleRate int     `json:"sample_rate,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
}

// BridgeConfig carries the MQTT bridge settings. Zero values take
// defaults.
type BridgeConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	QoS       byte
	// TopicPrefix names the device topic root; the bridge subscribes
	// {prefix}/+/audio and {prefix}/+/video.
	TopicPrefix string
	// AudioTopic and VideoTopic are the bus subjects envelopes are
	// republished to.
	AudioTopic string
	VideoTopic string

	Metrics *metric.Metrics
	Logger  *slog.Logger
}

// Bridge subscribes the MQTT device topics and republishes every valid
// chunk as a standard envelope on the bus. Malformed payloads are
// dropped with a log line.
type Bridge struct {
	brokerURL string
	clientID  string
	username  string
	password  string
	qos       byte
	prefix    string

	audioTopic string
	videoTopic string

	bus     Bus
	logger  *slog.Logger
	metrics *metric.Metrics

	client      mqtt.Client
	started     atomic.Bool
	lifecycleMu sync.Mutex
}

// NewBridge wires an MQTT ingest bridge over the given bus.
func NewBridge(cfg BridgeConfig, bus Bus) (*Bridge, error) {
	if bus == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"ingest.Bridge", "NewBridge", "bus is required")
	}
	if cfg.BrokerURL == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"ingest.Bridge", "NewBridge", "broker url is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bridge{
		brokerURL:  cfg.BrokerURL,
		clientID:   cfg.ClientID,
		username:   cfg.Username,
		password:   cfg.Password,
		qos:        cfg.QoS,
		prefix:     cfg.TopicPrefix,
		audioTopic: cfg.AudioTopic,
		videoTopic: cfg.VideoTopic,
		bus:        bus,
		logger:     logger,
		metrics:    cfg.Metrics,
	}
	if b.clientID == "" {
		b.clientID = defaultClientID
	}
	if b.prefix == "" {
		b.prefix = defaultTopicPrefix
	}
	if b.audioTopic == "" {
		b.audioTopic = defaultAudioTopic
	}
	if b.videoTopic == "" {
		b.videoTopic = defaultVideoTopic
	}
	return b, nil
}

// Start connects to the broker. Subscriptions are (re)established from
// the on-connect hook so an auto-reconnect restores them.
func (b *Bridge) Start(ctx context.Context) error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	if b.started.Load() {
		return errors.WrapInvalidState(
			fmt.Errorf("bridge already started"),
			"ingest.Bridge", "Start", "check started state")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.brokerURL)
	opts.SetClientID(b.clientID)
	if b.username != "" {
		opts.SetUsername(b.username)
		opts.SetPassword(b.password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)
	opts.SetPingTimeout(pingTimeout)
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		b.logger.Info("MQTT connected", "broker", b.brokerURL)
		b.subscribe(ctx, client)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.logger.Warn("MQTT connection lost", "broker", b.brokerURL, "error", err)
		if b.metrics != nil {
			b.metrics.RecordError(serviceName, "connection_lost")
		}
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return errors.WrapTransient(token.Error(),
			"ingest.Bridge", "Start", "connect to broker")
	}

	b.client = client
	b.started.Store(true)
	return nil
}

// Stop disconnects from the broker.
func (b *Bridge) Stop() {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	if !b.started.Load() {
		return
	}
	b.client.Disconnect(disconnectQuiesce)
	b.started.Store(false)
	b.logger.Info("MQTT bridge stopped")
}

// IsHealthy reports whether the broker connection is up.
func (b *Bridge) IsHealthy() bool {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()
	return b.started.Load() && b.client.IsConnected()
}

func (b *Bridge) subscribe(ctx context.Context, client mqtt.Client) {
	subs := []struct {
		filter   string
		modality message.Modality
		subject  string
	}{
		{b.prefix + "/+/audio", message.ModalityAudio, b.audioTopic},
		{b.prefix + "/+/video", message.ModalityVideo, b.videoTopic},
	}
	for _, sub := range subs {
		token := client.Subscribe(sub.filter, b.qos, b.chunkHandler(ctx, sub.modality, sub.subject))
		if token.Wait() && token.Error() != nil {
			b.logger.Error("MQTT subscribe failed", "filter", sub.filter, "error", token.Error())
			if b.metrics != nil {
				b.metrics.RecordError(serviceName, "subscribe")
			}
			continue
		}
		b.logger.Info("MQTT subscribed", "filter", sub.filter)
	}
}

// chunkHandler builds the message handler for one modality topic.
func (b *Bridge) chunkHandler(ctx context.Context, modality message.Modality, subject string) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		deviceID := b.deviceFromTopic(msg.Topic())
		if deviceID == "" {
			b.logger.Warn("Dropping chunk with unparsable topic", "topic", msg.Topic())
			b.recordError("topic_parse")
			return
		}

		var payload devicePayload
		if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
			b.logger.Warn("Dropping malformed device payload",
				"device_id", deviceID, "topic", msg.Topic(), "error", err)
			b.recordError("payload_parse")
			return
		}
		if len(payload.Data) == 0 {
			b.logger.Warn("Dropping empty device payload", "device_id", deviceID)
			b.recordError("payload_empty")
			return
		}
		if b.metrics != nil {
			b.metrics.RecordMessageReceived(serviceName, modality.String()+"_chunk")
		}

		chunk := message.NewChunkMessage("", deviceID, modality, len(payload.Data))
		data, err := json.Marshal(chunk)
		if err != nil {
			b.logger.Warn("Chunk envelope marshal failed", "device_id", deviceID, "error", err)
			b.recordError("envelope_marshal")
			return
		}
		if err := b.bus.Publish(ctx, subject, data); err != nil {
			b.logger.Warn("Chunk publish failed",
				"device_id", deviceID, "subject", subject, "error", err)
			b.recordError("chunk_publish")
			return
		}

		b.logger.Debug("Device chunk bridged",
			"device_id", deviceID, "modality", modality.String(),
			"bytes", len(payload.Data), "sample_rate", payload.SampleRate,
			"duration", payload.Duration)
		if b.metrics != nil {
			b.metrics.RecordMessagePublished(serviceName, subject)
		}
	}
}

// deviceFromTopic pulls the device id out of {prefix}/{device}/{kind}.
func (b *Bridge) deviceFromTopic(topic string) string {
	rest := strings.TrimPrefix(topic, b.prefix+"/")
	if rest == topic {
		return ""
	}
	if i := strings.IndexByte(rest, '/'); i > 0 {
		return rest[:i]
	}
	return ""
}

func (b *Bridge) recordError(kind string) {
	if b.metrics != nil {
		b.metrics.RecordError(serviceName, kind)
	}
}
