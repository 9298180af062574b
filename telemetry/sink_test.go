package telemetry

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBatch struct {
	mu      sync.Mutex
	query   string
	rows    [][]any
	sendErr error
	sent    bool
}

func (b *fakeBatch) Append(v ...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows = append(b.rows, v)
	return nil
}

func (b *fakeBatch) Send() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = true
	return b.sendErr
}

func (b *fakeBatch) rowCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rows)
}

func (b *fakeBatch) wasSent() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent
}

type fakeConn struct {
	mu         sync.Mutex
	execs      []string
	batches    []*fakeBatch
	prepareErr error
	closed     bool
}

func (c *fakeConn) Exec(_ context.Context, query string, _ ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, query)
	return nil
}

func (c *fakeConn) PrepareBatch(_ context.Context, query string) (chBatch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prepareErr != nil {
		return nil, c.prepareErr
	}
	b := &fakeBatch{query: query}
	c.batches = append(c.batches, b)
	return b, nil
}

func (c *fakeConn) Ping(context.Context) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) batchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func (c *fakeConn) batchAt(i int) *fakeBatch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches[i]
}

func (c *fakeConn) execQueries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.execs...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSinkFlushesOnStop(t *testing.T) {
	conn := &fakeConn{}
	s := newSink(conn, WithLogger(discardLogger()), WithFlushInterval(time.Hour))
	s.Start(context.Background())

	now := time.Now().UTC()
	s.RecordInference(InferenceRow{
		Timestamp:   now,
		SessionID:   "sess-1",
		DeviceID:    "dev-1",
		Modality:    "audio",
		Model:       "heuristic",
		InferenceMs: 12.5,
	})
	s.RecordInference(InferenceRow{
		Timestamp:   now,
		SessionID:   "sess-1",
		DeviceID:    "dev-1",
		Modality:    "video",
		Model:       "basic",
		InferenceMs: 20,
		AlertCount:  1,
	})
	s.RecordAlert(AlertRow{
		Timestamp:  now,
		AlertID:    "alert-1",
		SessionID:  "sess-1",
		DeviceID:   "dev-1",
		AlertType:  "cry_detected",
		Severity:   "medium",
		Confidence: 0.8,
	})

	require.NoError(t, s.Stop(time.Second))

	require.Equal(t, 2, conn.batchCount())

	inf := conn.batchAt(0)
	assert.Contains(t, inf.query, "inference_events")
	require.Equal(t, 2, inf.rowCount())
	assert.True(t, inf.wasSent())
	assert.Equal(t, "sess-1", inf.rows[0][1])
	assert.Equal(t, "audio", inf.rows[0][3])
	assert.Equal(t, "heuristic", inf.rows[0][4])
	assert.Equal(t, uint32(1), inf.rows[1][6])

	al := conn.batchAt(1)
	assert.Contains(t, al.query, "alert_events")
	require.Equal(t, 1, al.rowCount())
	assert.True(t, al.wasSent())
	assert.Equal(t, "alert-1", al.rows[0][1])
	assert.Equal(t, "cry_detected", al.rows[0][4])

	assert.True(t, conn.isClosed())
}

func TestSinkBatchThresholdFlushesEarly(t *testing.T) {
	conn := &fakeConn{}
	s := newSink(conn, WithLogger(discardLogger()), WithFlushInterval(time.Hour), WithMaxBatch(2))
	s.Start(context.Background())

	s.RecordInference(InferenceRow{SessionID: "sess-1", Modality: "audio"})
	s.RecordInference(InferenceRow{SessionID: "sess-1", Modality: "audio"})

	require.Eventually(t, func() bool {
		return conn.batchCount() == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop(time.Second))

	// Nothing was left over for the final flush.
	assert.Equal(t, 1, conn.batchCount())
	assert.Equal(t, 2, conn.batchAt(0).rowCount())
}

func TestSinkPeriodicFlush(t *testing.T) {
	conn := &fakeConn{}
	s := newSink(conn, WithLogger(discardLogger()), WithFlushInterval(20*time.Millisecond))
	s.Start(context.Background())

	s.RecordAlert(AlertRow{AlertID: "alert-1", AlertType: "high_activity"})

	require.Eventually(t, func() bool {
		return conn.batchCount() >= 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop(time.Second))
	assert.Contains(t, conn.batchAt(0).query, "alert_events")
}

func TestSinkDropsWhenQueueFull(t *testing.T) {
	conn := &fakeConn{}
	// Never started, so nothing consumes the queues.
	s := newSink(conn, WithLogger(discardLogger()), WithQueueSize(1))

	s.RecordInference(InferenceRow{SessionID: "a"})
	s.RecordInference(InferenceRow{SessionID: "b"})
	s.RecordAlert(AlertRow{AlertID: "x"})
	s.RecordAlert(AlertRow{AlertID: "y"})

	assert.Equal(t, int64(2), s.Dropped())

	require.NoError(t, s.Stop(time.Second))
	assert.True(t, conn.isClosed())
}

func TestSinkPrepareFailureShedsRows(t *testing.T) {
	conn := &fakeConn{prepareErr: stderrors.New("clickhouse down")}
	s := newSink(conn, WithLogger(discardLogger()), WithFlushInterval(time.Hour))
	s.Start(context.Background())

	s.RecordInference(InferenceRow{SessionID: "sess-1"})

	require.NoError(t, s.Stop(time.Second))
	assert.Equal(t, 0, conn.batchCount())
}

func TestSinkContextCancelFlushes(t *testing.T) {
	conn := &fakeConn{}
	ctx, cancel := context.WithCancel(context.Background())
	s := newSink(conn, WithLogger(discardLogger()), WithFlushInterval(time.Hour))
	s.Start(ctx)

	s.RecordInference(InferenceRow{SessionID: "sess-1"})
	cancel()

	select {
	case <-s.done:
	case <-time.After(time.Second):
		t.Fatal("flush loop did not exit on context cancel")
	}

	require.Equal(t, 1, conn.batchCount())
	require.NoError(t, s.Stop(time.Second))
}

func TestSinkMigrateCreatesTables(t *testing.T) {
	conn := &fakeConn{}
	s := newSink(conn, WithLogger(discardLogger()))

	require.NoError(t, s.migrate(context.Background()))

	queries := conn.execQueries()
	require.Len(t, queries, 2)
	assert.Contains(t, queries[0], "inference_events")
	assert.Contains(t, queries[1], "alert_events")
}
