package inference

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/YuvDwi/Cradle/errors"
	"github.com/YuvDwi/Cradle/message"
	"github.com/YuvDwi/Cradle/metric"
	"github.com/YuvDwi/Cradle/pkg/worker"
	"github.com/YuvDwi/Cradle/telemetry"
)

// Topics and tuning defaults.
const (
	defaultAudioTopic = "audio-stream"
	defaultVideoTopic = "video-stream"
	defaultAlertTopic = "alerts"

	// defaultQueueGroup spreads chunks across daemon replicas instead
	// of duplicating work on each one.
	defaultQueueGroup = "inference"

	defaultWorkers       = 8
	defaultQueueSize     = 256
	defaultEngineTimeout = 10 * time.Second

	serviceName = "inference"
)

// Engine input placeholders. Raw media does not ride the bus; it lands
// in object storage on the upload path, so the coordinator feeds the
// engine a fixed buffer per modality.
// TODO: fetch the real chunk from object storage once the media
// service exposes per-chunk reads.
const (
	placeholderAudioBytes = 16000
	placeholderVideoBytes = 10000
)

var jpegHeader = []byte{0xff, 0xd8, 0xff}

// placeholderPayload synthesizes the engine input for one chunk.
func placeholderPayload(modality message.Modality) []byte {
	if modality == message.ModalityVideo {
		payload := make([]byte, len(jpegHeader)+placeholderVideoBytes)
		copy(payload, jpegHeader)
		return payload
	}
	return make([]byte, placeholderAudioBytes)
}

// Bus is the slice of the message bus the coordinator uses.
type Bus interface {
	QueueSubscribe(ctx context.Context, subject, queue string, handler func(context.Context, []byte)) error
	Publish(ctx context.Context, subject string, data []byte) error
}

// Gate admits or drops inference work per modality and device.
type Gate interface {
	Allow(ctx context.Context, modality message.Modality, deviceID string) bool
}

// ResultCache keeps the latest result per session and modality.
type ResultCache interface {
	PutResult(ctx context.Context, sessionID string, modality message.Modality, result any) error
}

// AlertSink receives every alert the rules emit, after it has been
// published to the alert topic.
type AlertSink interface {
	Dispatch(ctx context.Context, alert message.AlertEvent)
}

// Deps are the collaborators the coordinator drives. Bus and Engine
// are required. A nil Gate admits everything, a nil Cache skips
// caching, a nil Sink skips the fan-out, a nil Recorder records
// nothing.
type Deps struct {
	Bus      Bus
	Engine   Engine
	Gate     Gate
	Cache    ResultCache
	Sink     AlertSink
	Recorder telemetry.Recorder
}

// job is one chunk envelope waiting for a worker.
type job struct {
	modality message.Modality
	data     []byte
}

// Coordinator consumes the modality topics and drives the pipeline
// per chunk: validate, rate-gate, analyze, cache, evaluate rules.
// Failures are isolated to the message that caused them.
type Coordinator struct {
	bus      Bus
	engine   Engine
	gate     Gate
	cache    ResultCache
	sink     AlertSink
	recorder telemetry.Recorder

	logger  *slog.Logger
	metrics *metric.Metrics

	audioTopic string
	videoTopic string
	alertTopic string
	queueGroup string

	workers       int
	queueSize     int
	engineTimeout time.Duration

	pool *worker.Pool[job]
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables pipeline counters and the inference latency
// histogram.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithTopics overrides the consumed and published topics.
func WithTopics(audio, video, alerts string) Option {
	return func(c *Coordinator) {
		if audio != "" {
			c.audioTopic = audio
		}
		if video != "" {
			c.videoTopic = video
		}
		if alerts != "" {
			c.alertTopic = alerts
		}
	}
}

// WithQueueGroup sets the bus queue group name.
func WithQueueGroup(group string) Option {
	return func(c *Coordinator) {
		if group != "" {
			c.queueGroup = group
		}
	}
}

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithQueueSize sets the pending chunk queue capacity. A full queue
// sheds chunks rather than blocking the subscription.
func WithQueueSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithEngineTimeout bounds each engine call.
func WithEngineTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.engineTimeout = d
		}
	}
}

// NewCoordinator wires the pipeline. The worker pool is created here
// but consuming starts on Start.
func NewCoordinator(deps Deps, opts ...Option) (*Coordinator, error) {
	if deps.Bus == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Coordinator", "NewCoordinator", "bus is required")
	}
	if deps.Engine == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Coordinator", "NewCoordinator", "engine is required")
	}

	recorder := deps.Recorder
	if recorder == nil {
		recorder = telemetry.Nop{}
	}

	c := &Coordinator{
		bus:           deps.Bus,
		engine:        deps.Engine,
		gate:          deps.Gate,
		cache:         deps.Cache,
		sink:          deps.Sink,
		recorder:      recorder,
		logger:        slog.Default(),
		audioTopic:    defaultAudioTopic,
		videoTopic:    defaultVideoTopic,
		alertTopic:    defaultAlertTopic,
		queueGroup:    defaultQueueGroup,
		workers:       defaultWorkers,
		queueSize:     defaultQueueSize,
		engineTimeout: defaultEngineTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.pool = worker.NewPool[job](c.workers, c.queueSize, c.process)
	return c, nil
}

// Start launches the worker pool and subscribes to both modality
// topics.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.pool.Start(ctx); err != nil {
		return errors.Wrap(err, "Coordinator", "Start", "start worker pool")
	}

	if err := c.bus.QueueSubscribe(ctx, c.audioTopic, c.queueGroup, c.enqueue(message.ModalityAudio)); err != nil {
		return errors.Wrap(err, "Coordinator", "Start", "subscribe audio topic")
	}
	if err := c.bus.QueueSubscribe(ctx, c.videoTopic, c.queueGroup, c.enqueue(message.ModalityVideo)); err != nil {
		return errors.Wrap(err, "Coordinator", "Start", "subscribe video topic")
	}

	c.logger.Info("Inference coordinator started",
		"audio_topic", c.audioTopic,
		"video_topic", c.videoTopic,
		"workers", c.workers)
	return nil
}

// Stop drains the worker pool within the timeout. Subscriptions die
// with the bus connection.
func (c *Coordinator) Stop(timeout time.Duration) error {
	return c.pool.Stop(timeout)
}

// Stats exposes worker pool counters.
func (c *Coordinator) Stats() worker.PoolStats {
	return c.pool.Stats()
}

// enqueue hands a received envelope to the pool. A full queue sheds
// the chunk so the subscription never blocks behind slow inference.
func (c *Coordinator) enqueue(modality message.Modality) func(context.Context, []byte) {
	return func(_ context.Context, data []byte) {
		if c.metrics != nil {
			c.metrics.RecordMessageReceived(serviceName, modality.String()+"_chunk")
		}
		if err := c.pool.Submit(job{modality: modality, data: data}); err != nil {
			c.logger.Warn("Inference queue full, dropping chunk", "modality", modality.String())
			if c.metrics != nil {
				c.metrics.RecordError(serviceName, "queue_full")
			}
		}
	}
}

// process runs the pipeline for one chunk. Policy drops (validation,
// rate limit) return nil; real failures return the error so the pool
// counts them.
func (c *Coordinator) process(ctx context.Context, j job) error {
	var chunk message.ChunkMessage
	if err := json.Unmarshal(j.data, &chunk); err != nil {
		c.logger.Warn("Dropping malformed chunk envelope",
			"modality", j.modality.String(),
			"error", err)
		c.recordError("validation")
		return nil
	}

	if chunk.SessionID == "" || chunk.DeviceID == "" {
		c.logger.Warn("Invalid chunk: missing session_id or device_id",
			"modality", j.modality.String())
		c.recordError("validation")
		return nil
	}

	if c.gate != nil && !c.gate.Allow(ctx, j.modality, chunk.DeviceID) {
		c.logger.Debug("Rate limit exceeded, dropping chunk",
			"modality", j.modality.String(),
			"device_id", chunk.DeviceID)
		return nil
	}

	engineCtx, cancel := context.WithTimeout(ctx, c.engineTimeout)
	defer cancel()

	payload := placeholderPayload(j.modality)

	start := time.Now()
	var (
		result any
		alerts []message.AlertEvent
		model  string
		err    error
	)
	switch j.modality {
	case message.ModalityVideo:
		var video *message.VideoResult
		video, err = c.engine.AnalyzeVideo(engineCtx, payload)
		if err == nil {
			result = video
			model = video.ModelUsed
			alerts = EvaluateVideo(chunk.DeviceID, chunk.SessionID, video)
		}
	default:
		var audio *message.AudioResult
		audio, err = c.engine.AnalyzeAudio(engineCtx, payload)
		if err == nil {
			result = audio
			model = audio.ModelUsed
			alerts = EvaluateAudio(chunk.DeviceID, chunk.SessionID, audio)
		}
	}
	elapsed := time.Since(start)

	if err != nil {
		c.logger.Warn("Inference failed",
			"modality", j.modality.String(),
			"session_id", chunk.SessionID,
			"error", err)
		c.recordError("inference")
		return err
	}

	if c.metrics != nil {
		c.metrics.RecordInferenceDuration(j.modality.String(), elapsed)
	}

	// The cache is advisory. Losing a cached result must not lose the
	// alerts behind it.
	if c.cache != nil {
		if err := c.cache.PutResult(ctx, chunk.SessionID, j.modality, result); err != nil {
			c.logger.Warn("Result cache write failed",
				"session_id", chunk.SessionID,
				"modality", j.modality.String(),
				"error", err)
			c.recordError("cache")
		}
	}

	for _, alert := range alerts {
		c.emit(ctx, alert)
	}

	c.recorder.RecordInference(telemetry.InferenceRow{
		Timestamp:   time.Now().UTC(),
		SessionID:   chunk.SessionID,
		DeviceID:    chunk.DeviceID,
		Modality:    j.modality.String(),
		Model:       model,
		InferenceMs: elapsed.Seconds() * 1000,
		AlertCount:  uint32(len(alerts)),
	})

	if c.metrics != nil {
		c.metrics.RecordMessageProcessed(serviceName, j.modality.String()+"_chunk", "success")
	}
	return nil
}

// emit publishes one alert to the alert topic and hands it to the
// fan-out. Either half failing does not stop the other.
func (c *Coordinator) emit(ctx context.Context, alert message.AlertEvent) {
	data, err := json.Marshal(alert)
	if err != nil {
		c.logger.Warn("Alert marshal failed", "alert_id", alert.ID, "error", err)
		c.recordError("alert_publish")
	} else if err := c.bus.Publish(ctx, c.alertTopic, data); err != nil {
		c.logger.Warn("Alert publish failed", "alert_id", alert.ID, "error", err)
		c.recordError("alert_publish")
	} else if c.metrics != nil {
		c.metrics.RecordMessagePublished(serviceName, c.alertTopic)
	}

	if c.sink != nil {
		c.sink.Dispatch(ctx, alert)
	}
}

func (c *Coordinator) recordError(kind string) {
	if c.metrics != nil {
		c.metrics.RecordError(serviceName, kind)
	}
}
