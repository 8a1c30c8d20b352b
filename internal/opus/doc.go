// Package opus handles encoding, decoding, and pacing of Opus audio frames
// for Discord voice playback.
//
// Audio is stored in a minimal binary format: concatenated length-prefixed frames
// ([uint16 LE length][opus bytes]). No headers, no metadata.
//
// Encode transcodes any audio to Opus via FFmpeg and produces length-prefixed frames.
// FrameReader and OggReader read frames back from the stored format and from Ogg
// Opus files. Pump paces frames from a FrameProvider into a voice connection.
package opus
