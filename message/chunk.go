package message

import (
	"fmt"
	"time"
)

// Modality identifies which sensor stream a chunk or result belongs to.
type Modality string

const (
	ModalityAudio Modality = "audio"
	ModalityVideo Modality = "video"
)

// Valid reports whether m is a known modality.
func (m Modality) Valid() bool {
	return m == ModalityAudio || m == ModalityVideo
}

func (m Modality) String() string {
	return string(m)
}

// deviceChunkAudioMax is the size boundary for classifying raw device
// uploads that arrive without an explicit modality. Audio chunks from
// monitor devices are small PCM windows; anything larger is treated as
// a video frame.
const deviceChunkAudioMax = 10000

// ModalityForSize classifies a raw chunk by payload size. Used on the
// device upload path where the sender does not declare a modality.
func ModalityForSize(size int) Modality {
	if size < deviceChunkAudioMax {
		return ModalityAudio
	}
	return ModalityVideo
}

// ChunkMessage is the envelope published to the stream bus for every
// ingested sensor chunk. Raw chunk bytes are not carried on the bus;
// consumers that need payload data fetch it from blob storage or run
// inference on the sizes and features alone.
//
// SessionID is empty for chunks ingested on the device path (a raw
// WebSocket upload with no active session).
type ChunkMessage struct {
	SessionID string    `json:"session_id,omitempty"`
	DeviceID  string    `json:"device_id"`
	ChunkType Modality  `json:"chunk_type"`
	Timestamp time.Time `json:"timestamp"`
	DataSize  int       `json:"data_size"`
}

// NewChunkMessage builds a chunk envelope stamped with the current UTC
// time. sessionID may be empty on the device path.
func NewChunkMessage(sessionID, deviceID string, chunkType Modality, dataSize int) ChunkMessage {
	return ChunkMessage{
		SessionID: sessionID,
		DeviceID:  deviceID,
		ChunkType: chunkType,
		Timestamp: time.Now().UTC(),
		DataSize:  dataSize,
	}
}

// Validate checks the envelope fields common to both ingest paths.
// Session presence is a consumer-side policy, not an envelope rule, so
// an empty SessionID is accepted here.
func (c ChunkMessage) Validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	if !c.ChunkType.Valid() {
		return fmt.Errorf("unknown chunk_type %q", c.ChunkType)
	}
	if c.DataSize <= 0 {
		return fmt.Errorf("data_size must be positive, got %d", c.DataSize)
	}
	if c.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}
