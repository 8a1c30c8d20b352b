// Package player owns one guild's playback session: the engine player, its
// frame bridge and loss statistics, the events reported to the controller and
// the periodic playerUpdate broadcast.
//
// A Player is created by the control session (see Socket) the first time a
// guild is referenced and lives until it is destroyed. Commands, engine
// callbacks, frame pulls and broadcast ticks may all run on different
// goroutines; the broadcast task handle, the end-marker flag and the
// destroyed flag are guarded by a per-player mutex.
package player
