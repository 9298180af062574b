// Package message defines the wire types exchanged between Cradle
// components: chunk envelopes on the stream bus, inference results,
// alert events, and the realtime client envelope.
//
// # Chunk envelopes
//
// Every ingested sensor chunk is announced on the stream bus as a
// ChunkMessage. The payload bytes themselves stay off the bus; the
// envelope carries identity, modality, and size:
//
//	{"session_id":"…","device_id":"…","chunk_type":"audio",
//	 "timestamp":"2026-01-02T15:04:05Z","data_size":4096}
//
// Chunks from the session upload path carry both IDs. Chunks from the
// raw device path have no session, so SessionID is omitted and the
// modality is inferred from the payload size with ModalityForSize.
//
// # Inference results
//
// AudioResult and VideoResult are the typed outputs of the inference
// engines. Their JSON shapes match what the model servers produce, so
// the same structs decode remote responses and serialize cached
// results.
//
// # Alerts
//
// AlertEvent is the unit the alert rules emit. Severities are ordered
// (low < medium < high < critical); use Severity.AtLeast for
// threshold checks rather than comparing strings. Alerts are wrapped
// in an Envelope before being pushed to realtime clients:
//
//	{"type":"alert","data":{…alert fields…}}
//
// All timestamps are UTC and serialize as RFC 3339.
package message
