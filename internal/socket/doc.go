// Package socket is the controller-facing side of the node. A Server accepts
// authenticated websocket sessions; each session is a Context that owns the
// players and voice connections created through it and survives short
// disconnects when resuming is configured.
package socket
