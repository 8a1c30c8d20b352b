package voice

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestGatewayConnectionReuse(t *testing.T) {
	g := NewGateway(nil)
	vc := &discordgo.VoiceConnection{}

	first := g.connection(1, vc, "lobby")
	moved := g.connection(1, vc, "stage")
	if moved != first {
		t.Fatal("moving channels on the same voice connection created a new Connection")
	}
	if got := first.ChannelID(); got != "stage" {
		t.Errorf("ChannelID() = %q, want stage", got)
	}
	if !g.holds(1, vc) {
		t.Error("gateway does not hold the open connection")
	}

	if other := g.connection(2, vc, "lobby"); other == first {
		t.Error("different guilds share a Connection")
	}

	fresh := &discordgo.VoiceConnection{}
	replaced := g.connection(1, fresh, "lobby")
	if replaced == first {
		t.Error("a new voice connection reused the old Connection")
	}
	if g.holds(1, vc) {
		t.Error("gateway still holds the replaced voice connection")
	}
}

func TestGatewaySkipsClosedConnection(t *testing.T) {
	g := NewGateway(nil)
	vc := &discordgo.VoiceConnection{}

	first := g.connection(7, vc, "lobby")
	first.mu.Lock()
	first.closed = true
	first.mu.Unlock()

	if g.holds(7, vc) {
		t.Error("gateway holds a closed connection")
	}
	second := g.connection(7, vc, "lobby")
	if second == first {
		t.Fatal("a closed Connection was reused")
	}

	g.forget(first)
	if !g.holds(7, vc) {
		t.Error("forgetting a stale Connection dropped its replacement")
	}
	g.forget(second)
	if g.holds(7, vc) {
		t.Error("forgotten connection is still held")
	}
}
