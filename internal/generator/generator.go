package generator

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces values of type T, such as session ids.
type Generator[T any] interface {
	Next() (T, error)
}

// UUIDV4Generator produces UUIDv4 strings. The node uses it for session ids.
type UUIDV4Generator struct{}

func (g *UUIDV4Generator) Next() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate uuid: %w", err)
	}
	return id.String(), nil
}

// SequenceGenerator produces Prefix-1, Prefix-2, ... and is safe for
// concurrent use.
type SequenceGenerator struct {
	Prefix string
	n      atomic.Uint64
}

func (g *SequenceGenerator) Next() (string, error) {
	return fmt.Sprintf("%s-%d", g.Prefix, g.n.Add(1)), nil
}

var (
	_ Generator[string] = &UUIDV4Generator{}
	_ Generator[string] = &SequenceGenerator{}
)
