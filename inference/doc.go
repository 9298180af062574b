// Package inference turns chunk envelopes into analysis results and
// alerts.
//
// The Engine contract scores raw media: AnalyzeAudio reports whether a
// buffer of PCM samples sounds like crying, AnalyzeVideo reports
// detections, motion and scene analysis for one frame. Two engines
// ship: HTTPEngine calls the model sidecar over JSON, HeuristicEngine
// reproduces the sidecar's fallback scoring locally so the daemon runs
// end-to-end without it.
//
// The Coordinator consumes the modality topics, gates each chunk
// through the rate limiter, invokes the engine on a bounded worker
// pool, caches the result, and feeds the alert rules. Every failure is
// isolated to the message that caused it.
package inference
