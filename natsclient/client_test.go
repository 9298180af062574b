package natsclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Test basic client creation
func TestNewClient(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	assert.NoError(t, err)

	assert.NotNil(t, client)
	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
}

// Test circuit breaker opens after failures
func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	client, err := NewClient("nats://invalid:4222")
	assert.NoError(t, err)

	// Record 4 failures - should not open
	for i := 0; i < 4; i++ {
		client.recordFailure()
	}
	assert.NotEqual(t, StatusCircuitOpen, client.Status())

	// 5th failure should open circuit
	client.recordFailure()
	assert.Equal(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, int32(5), client.Failures())
}

// Test circuit breaker reset
func TestCircuitBreaker_Reset(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	assert.NoError(t, err)

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, StatusCircuitOpen, client.Status())

	client.resetCircuit()
	assert.Equal(t, int32(0), client.Failures())
	assert.NotEqual(t, StatusCircuitOpen, client.Status())
}

// Test exponential backoff
func TestCircuitBreaker_ExponentialBackoff(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	assert.NoError(t, err)

	// Initial backoff should be 1 second
	assert.Equal(t, time.Second, client.Backoff())

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, 2*time.Second, client.Backoff())

	// Another round of failures
	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, 4*time.Second, client.Backoff())

	// Backoff should cap at max (1 minute)
	for i := 0; i < 20; i++ {
		for j := 0; j < 5; j++ {
			client.recordFailure()
		}
	}
	assert.LessOrEqual(t, client.Backoff(), time.Minute)
}

// Test custom circuit threshold
func TestCircuitBreaker_CustomThreshold(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithCircuitBreakerThreshold(2),
	)
	assert.NoError(t, err)

	client.recordFailure()
	assert.NotEqual(t, StatusCircuitOpen, client.Status())

	client.recordFailure()
	assert.Equal(t, StatusCircuitOpen, client.Status())
}

// Test status transitions
func TestStatus_Transitions(t *testing.T) {
	tests := []struct {
		name           string
		initialStatus  ConnectionStatus
		action         func(*Client)
		expectedStatus ConnectionStatus
	}{
		{
			name:          "disconnected to connecting",
			initialStatus: StatusDisconnected,
			action: func(m *Client) {
				m.setStatus(StatusConnecting)
			},
			expectedStatus: StatusConnecting,
		},
		{
			name:          "connecting to connected",
			initialStatus: StatusConnecting,
			action: func(m *Client) {
				m.setStatus(StatusConnected)
			},
			expectedStatus: StatusConnected,
		},
		{
			name:          "connected to reconnecting",
			initialStatus: StatusConnected,
			action: func(m *Client) {
				m.setStatus(StatusReconnecting)
			},
			expectedStatus: StatusReconnecting,
		},
		{
			name:          "any to circuit open",
			initialStatus: StatusConnected,
			action: func(m *Client) {
				for i := 0; i < 5; i++ {
					m.recordFailure()
				}
			},
			expectedStatus: StatusCircuitOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient("nats://localhost:4222")
			assert.NoError(t, err)
			client.setStatus(tt.initialStatus)

			tt.action(client)

			assert.Equal(t, tt.expectedStatus, client.Status())
		})
	}
}

// Test concurrent safety
func TestConcurrentSafety(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	assert.NoError(t, err)

	var wg sync.WaitGroup
	iterations := 100

	// Concurrent status updates
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			client.setStatus(StatusConnecting)
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			client.setStatus(StatusConnected)
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			_ = client.Status()
		}
	}()

	// Concurrent failure recording
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			client.recordFailure()
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			client.resetCircuit()
		}
	}()

	wg.Wait()

	// Should not panic and should have valid state
	status := client.Status()
	assert.Contains(t, []ConnectionStatus{
		StatusDisconnected,
		StatusConnecting,
		StatusConnected,
		StatusReconnecting,
		StatusCircuitOpen,
	}, status)
}

// Test IsHealthy logic
func TestIsHealthy(t *testing.T) {
	tests := []struct {
		name     string
		status   ConnectionStatus
		expected bool
	}{
		{"connected is healthy", StatusConnected, true},
		{"disconnected is not healthy", StatusDisconnected, false},
		{"connecting is not healthy", StatusConnecting, false},
		{"reconnecting is not healthy", StatusReconnecting, false},
		{"circuit open is not healthy", StatusCircuitOpen, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient("nats://localhost:4222")
			assert.NoError(t, err)
			client.setStatus(tt.status)
			assert.Equal(t, tt.expected, client.IsHealthy())
		})
	}
}

// Test WaitForConnection with timeout
func TestWaitForConnection(t *testing.T) {
	t.Run("times out when not connected", func(t *testing.T) {
		client, err := NewClient("nats://localhost:4222")
		assert.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err = client.WaitForConnection(ctx)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "timeout")
	})

	t.Run("returns immediately when connected", func(t *testing.T) {
		client, err := NewClient("nats://localhost:4222")
		assert.NoError(t, err)
		client.setStatus(StatusConnected)

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		start := time.Now()
		err = client.WaitForConnection(ctx)
		elapsed := time.Since(start)

		assert.NoError(t, err)
		assert.Less(t, elapsed, 100*time.Millisecond)
	})

	t.Run("returns when becomes connected", func(t *testing.T) {
		client, err := NewClient("nats://localhost:4222")
		assert.NoError(t, err)

		// Simulate connection after delay
		go func() {
			time.Sleep(50 * time.Millisecond)
			client.setStatus(StatusConnected)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		err = client.WaitForConnection(ctx)
		assert.NoError(t, err)
		assert.Equal(t, StatusConnected, client.Status())
	})
}

// Test KeyValue bucket guards
func TestKeyValueBuckets_Guards(t *testing.T) {
	t.Run("operations return error when not connected", func(t *testing.T) {
		client, err := NewClient("nats://localhost:4222")
		assert.NoError(t, err)
		ctx := context.Background()

		cfg := jetstream.KeyValueConfig{Bucket: "test"}
		_, err = client.CreateKeyValueBucket(ctx, cfg)
		assert.Equal(t, ErrNotConnected, err)

		_, err = client.GetKeyValueBucket(ctx, "test")
		assert.Equal(t, ErrNotConnected, err)
	})

	t.Run("operations return error when circuit open", func(t *testing.T) {
		client, err := NewClient("nats://localhost:4222")
		assert.NoError(t, err)

		for i := 0; i < 5; i++ {
			client.recordFailure()
		}
		assert.Equal(t, StatusCircuitOpen, client.Status())

		ctx := context.Background()
		cfg := jetstream.KeyValueConfig{Bucket: "test"}

		_, err = client.CreateKeyValueBucket(ctx, cfg)
		assert.Equal(t, ErrCircuitOpen, err)

		_, err = client.GetKeyValueBucket(ctx, "test")
		assert.Equal(t, ErrCircuitOpen, err)
	})
}

// Test publish/subscribe guards and round-trips
func TestPublishSubscribe(t *testing.T) {
	t.Run("with no server", func(t *testing.T) {
		client, err := NewClient("nats://invalid-host:4222")
		assert.NoError(t, err)

		ctx := context.Background()

		err = client.Connect(ctx)
		assert.Error(t, err) // Should fail due to no server

		err = client.Close(ctx)
		assert.NoError(t, err) // Should succeed even when not connected

		err = client.Publish(ctx, "test.subject", []byte("data"))
		assert.Equal(t, ErrNotConnected, err)

		err = client.Subscribe(ctx, "test.subject", func(_ context.Context, _ []byte) {})
		assert.Equal(t, ErrNotConnected, err)

		err = client.QueueSubscribe(ctx, "test.subject", "workers", func(_ context.Context, _ []byte) {})
		assert.Equal(t, ErrNotConnected, err)
	})

	t.Run("with real NATS server", func(t *testing.T) {
		if testing.Short() {
			t.Skip("Skipping integration test in short mode")
		}

		ctx := context.Background()
		natsContainer, natsURL := startTestNATSContainer(ctx, t)
		defer natsContainer.Terminate(ctx)

		client, err := NewClient(natsURL,
			WithMaxReconnects(0), // No reconnects in tests
		)
		require.NoError(t, err)

		err = client.Connect(ctx)
		require.NoError(t, err)
		defer client.Close(ctx)

		assert.True(t, client.IsHealthy())

		err = client.Publish(ctx, "test.subject", []byte("data"))
		assert.NoError(t, err)

		received := make(chan []byte, 1)
		err = client.Subscribe(ctx, "test.reply", func(_ context.Context, data []byte) {
			received <- data
		})
		assert.NoError(t, err)

		err = client.Publish(ctx, "test.reply", []byte("response"))
		assert.NoError(t, err)

		select {
		case data := <-received:
			assert.Equal(t, []byte("response"), data)
		case <-time.After(1 * time.Second):
			t.Fatal("Message not received")
		}
	})

	t.Run("queue group splits traffic", func(t *testing.T) {
		if testing.Short() {
			t.Skip("Skipping integration test in short mode")
		}

		ctx := context.Background()
		natsContainer, natsURL := startTestNATSContainer(ctx, t)
		defer natsContainer.Terminate(ctx)

		client, err := NewClient(natsURL, WithMaxReconnects(0))
		require.NoError(t, err)
		require.NoError(t, client.Connect(ctx))
		defer client.Close(ctx)

		// Two members of the same queue group: each message goes to
		// exactly one of them.
		received := make(chan []byte, 10)
		handler := func(_ context.Context, data []byte) {
			received <- data
		}
		require.NoError(t, client.QueueSubscribe(ctx, "chunks", "inference", handler))
		require.NoError(t, client.QueueSubscribe(ctx, "chunks", "inference", handler))

		const total = 5
		for i := 0; i < total; i++ {
			require.NoError(t, client.Publish(ctx, "chunks", []byte{byte(i)}))
		}

		got := 0
		deadline := time.After(2 * time.Second)
		for got < total {
			select {
			case <-received:
				got++
			case <-deadline:
				t.Fatalf("received %d of %d messages", got, total)
			}
		}

		// No duplicates should arrive after the expected count.
		select {
		case extra := <-received:
			t.Fatalf("unexpected duplicate delivery: %v", extra)
		case <-time.After(200 * time.Millisecond):
		}
	})
}

// Test connection options
func TestConnectionOptions(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithMaxReconnects(10),
		WithReconnectWait(5*time.Second),
		WithPingInterval(30*time.Second),
	)
	assert.NoError(t, err)

	opts := client.ConnectionOptions()
	assert.NotNil(t, opts)

	assert.Equal(t, 10, client.MaxReconnects())
	assert.Equal(t, 5*time.Second, client.ReconnectWait())
	assert.Equal(t, 30*time.Second, client.PingInterval())
}

// Test status snapshot
func TestGetStatus(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	assert.NoError(t, err)

	for i := 0; i < 3; i++ {
		client.recordFailure()
	}

	status := client.GetStatus()
	assert.NotNil(t, status)
	assert.Equal(t, int32(3), status.FailureCount)
	assert.Equal(t, StatusDisconnected, status.Status)
	assert.NotZero(t, status.LastFailureTime)

	client.resetCircuit()
	status = client.GetStatus()
	assert.Equal(t, int32(0), status.FailureCount)
}

// Test graceful KV bucket already exists handling
func TestCreateKeyValueBucket_AlreadyExists(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{"bucket name already in use", errors.New("nats: bucket name already in use"), true},
		{"already exists", errors.New("bucket already exists"), true},
		{"stream name already in use", errors.New("nats: stream name already in use"), true},
		{"other error", errors.New("connection failed"), false},
		{"nil error", nil, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := isAlreadyExistsError(tc.err)
			assert.Equal(t, tc.expected, result)
		})
	}
}

// Helper function to start NATS container for unit tests
func startTestNATSContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "nats:2.11.7-alpine",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForListeningPort("4222/tcp"),
	}

	natsContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := natsContainer.Host(ctx)
	require.NoError(t, err)

	port, err := natsContainer.MappedPort(ctx, "4222")
	require.NoError(t, err)

	natsURL := fmt.Sprintf("nats://%s:%s", host, port.Port())
	return natsContainer, natsURL
}
