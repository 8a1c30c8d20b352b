// Package engine defines the boundary between the node and the audio engine
// that decodes tracks, produces Opus frames and resolves identifiers.
//
// The node only ever talks to an engine through these interfaces. The
// playback package provides the production implementation and enginetest
// provides a scriptable one for tests.
package engine
