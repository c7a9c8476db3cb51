// Package idgen is the identity port used for conventions and domain events.
package idgen

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator hands out new unique identifiers.
type Generator interface {
	New() string
}

type uuidGenerator struct{}

func (uuidGenerator) New() string { return uuid.NewString() }

// UUID returns a generator producing random (v4) UUIDs.
func UUID() Generator {
	return uuidGenerator{}
}

// Sequence produces prefix-1, prefix-2, ... and is meant for tests.
type Sequence struct {
	prefix string
	next   atomic.Int64
}

func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

func (s *Sequence) New() string {
	return fmt.Sprintf("%s-%d", s.prefix, s.next.Add(1))
}

// Static always returns the same id.
type Static string

func (s Static) New() string { return string(s) }
