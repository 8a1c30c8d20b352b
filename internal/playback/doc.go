// Package playback is the engine behind the node: it resolves identifiers
// against the configured sources and plays tracks as Opus frames.
package playback
