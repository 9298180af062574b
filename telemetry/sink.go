package telemetry

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/YuvDwi/Cradle/errors"
)

// ErrStopTimeout indicates the flush loop did not drain before the
// stop deadline.
var ErrStopTimeout = stderrors.New("timeout waiting for telemetry sink to stop")

const (
	defaultQueueSize     = 4096
	defaultMaxBatch      = 500
	defaultFlushInterval = 5 * time.Second

	// shutdownFlushTimeout bounds the final flush once the parent
	// context is already gone.
	shutdownFlushTimeout = 5 * time.Second
)

// chConn is the slice of the ClickHouse connection the sink uses.
type chConn interface {
	Exec(ctx context.Context, query string, args ...any) error
	PrepareBatch(ctx context.Context, query string) (chBatch, error)
	Ping(ctx context.Context) error
	Close() error
}

// chBatch is the slice of a prepared batch the sink uses.
type chBatch interface {
	Append(v ...any) error
	Send() error
}

// nativeConn narrows driver.Conn to chConn.
type nativeConn struct {
	conn driver.Conn
}

func (c nativeConn) Exec(ctx context.Context, query string, args ...any) error {
	return c.conn.Exec(ctx, query, args...)
}

func (c nativeConn) PrepareBatch(ctx context.Context, query string) (chBatch, error) {
	return c.conn.PrepareBatch(ctx, query)
}

func (c nativeConn) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c nativeConn) Close() error {
	return c.conn.Close()
}

// Config holds ClickHouse connection settings.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
}

// Sink buffers telemetry rows and flushes them to ClickHouse in
// batches. RecordInference and RecordAlert never block: a full queue
// drops the row and counts it.
type Sink struct {
	db     chConn
	logger *slog.Logger

	queueSize     int
	maxBatch      int
	flushInterval time.Duration

	inferences chan InferenceRow
	alerts     chan AlertRow

	dropped atomic.Int64
	started atomic.Bool

	startOnce sync.Once
	stopOnce  sync.Once
	quit      chan struct{}
	done      chan struct{}
}

var _ Recorder = (*Sink)(nil)

// Option configures a Sink.
type Option func(*Sink)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithQueueSize sets the buffered row capacity per table.
func WithQueueSize(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithMaxBatch sets the row count that forces an early flush.
func WithMaxBatch(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.maxBatch = n
		}
	}
}

// WithFlushInterval sets the periodic flush interval.
func WithFlushInterval(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.flushInterval = d
		}
	}
}

// NewSink connects to ClickHouse, creates the telemetry tables and
// returns a sink ready to Start.
func NewSink(cfg Config, opts ...Option) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Sink", "NewSink", "open clickhouse connection")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.WrapTransient(err, "Sink", "NewSink", "ping clickhouse")
	}

	s := newSink(nativeConn{conn: conn}, opts...)
	if err := s.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func newSink(db chConn, opts ...Option) *Sink {
	s := &Sink{
		db:            db,
		logger:        slog.Default(),
		queueSize:     defaultQueueSize,
		maxBatch:      defaultMaxBatch,
		flushInterval: defaultFlushInterval,
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.inferences = make(chan InferenceRow, s.queueSize)
	s.alerts = make(chan AlertRow, s.queueSize)
	return s
}

func (s *Sink) migrate(ctx context.Context) error {
	for _, ddl := range AllTables() {
		if err := s.db.Exec(ctx, ddl); err != nil {
			return errors.WrapTransient(err, "Sink", "migrate", "create telemetry table")
		}
	}
	return nil
}

// Start launches the flush loop. Safe to call once; later calls are
// no-ops.
func (s *Sink) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.run(ctx)
	})
}

// Stop flushes buffered rows and closes the connection. Rows recorded
// after Stop are dropped.
func (s *Sink) Stop(timeout time.Duration) error {
	s.stopOnce.Do(func() { close(s.quit) })

	if s.started.Load() {
		select {
		case <-s.done:
		case <-time.After(timeout):
			return ErrStopTimeout
		}
	}
	return s.db.Close()
}

// RecordInference implements Recorder.
func (s *Sink) RecordInference(row InferenceRow) {
	select {
	case s.inferences <- row:
	default:
		s.dropped.Add(1)
	}
}

// RecordAlert implements Recorder.
func (s *Sink) RecordAlert(row AlertRow) {
	select {
	case s.alerts <- row:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns the number of rows shed since the last periodic
// flush logged them.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Sink) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	infBuf := make([]InferenceRow, 0, s.maxBatch)
	alertBuf := make([]AlertRow, 0, s.maxBatch)

	for {
		select {
		case <-ctx.Done():
			s.finalFlush(&infBuf, &alertBuf)
			return
		case <-s.quit:
			s.finalFlush(&infBuf, &alertBuf)
			return
		case row := <-s.inferences:
			infBuf = append(infBuf, row)
			if len(infBuf) >= s.maxBatch {
				infBuf = s.flushInferences(ctx, infBuf)
			}
		case row := <-s.alerts:
			alertBuf = append(alertBuf, row)
			if len(alertBuf) >= s.maxBatch {
				alertBuf = s.flushAlerts(ctx, alertBuf)
			}
		case <-ticker.C:
			infBuf = s.flushInferences(ctx, infBuf)
			alertBuf = s.flushAlerts(ctx, alertBuf)
			if n := s.dropped.Swap(0); n > 0 {
				s.logger.Warn("Telemetry rows dropped", "count", n)
			}
		}
	}
}

// finalFlush drains whatever is still queued and writes it with a
// fresh bounded context, since the parent may already be cancelled.
func (s *Sink) finalFlush(infBuf *[]InferenceRow, alertBuf *[]AlertRow) {
	for {
		select {
		case row := <-s.inferences:
			*infBuf = append(*infBuf, row)
		case row := <-s.alerts:
			*alertBuf = append(*alertBuf, row)
		default:
			ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
			defer cancel()
			*infBuf = s.flushInferences(ctx, *infBuf)
			*alertBuf = s.flushAlerts(ctx, *alertBuf)
			return
		}
	}
}

func (s *Sink) flushInferences(ctx context.Context, rows []InferenceRow) []InferenceRow {
	if len(rows) == 0 {
		return rows
	}
	batch, err := s.db.PrepareBatch(ctx, insertInferenceSQL)
	if err != nil {
		s.logger.Warn("Inference batch dropped", "rows", len(rows), "error", err)
		return rows[:0]
	}
	for _, r := range rows {
		if err := batch.Append(r.Timestamp, r.SessionID, r.DeviceID, r.Modality, r.Model, r.InferenceMs, r.AlertCount); err != nil {
			s.logger.Warn("Inference batch dropped", "rows", len(rows), "error", err)
			return rows[:0]
		}
	}
	if err := batch.Send(); err != nil {
		s.logger.Warn("Inference batch dropped", "rows", len(rows), "error", err)
	}
	return rows[:0]
}

func (s *Sink) flushAlerts(ctx context.Context, rows []AlertRow) []AlertRow {
	if len(rows) == 0 {
		return rows
	}
	batch, err := s.db.PrepareBatch(ctx, insertAlertSQL)
	if err != nil {
		s.logger.Warn("Alert batch dropped", "rows", len(rows), "error", err)
		return rows[:0]
	}
	for _, r := range rows {
		if err := batch.Append(r.Timestamp, r.AlertID, r.SessionID, r.DeviceID, r.AlertType, r.Severity, r.Confidence); err != nil {
			s.logger.Warn("Alert batch dropped", "rows", len(rows), "error", err)
			return rows[:0]
		}
	}
	if err := batch.Send(); err != nil {
		s.logger.Warn("Alert batch dropped", "rows", len(rows), "error", err)
	}
	return rows[:0]
}
