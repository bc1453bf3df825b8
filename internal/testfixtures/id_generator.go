package testfixtures

import (
	"strconv"
	"sync/atomic"
)

// Sequence hands out predictable identifiers such as "int-1", "int-2" so
// tests can refer to interviews and slots by the order they were created.
type Sequence struct {
	prefix string
	n      atomic.Uint64
}

// NewSequence returns a sequence with the given prefix. An empty prefix
// becomes "id".
func NewSequence(prefix string) *Sequence {
	if prefix == "" {
		prefix = "id"
	}
	return &Sequence{prefix: prefix}
}

func (s *Sequence) Next() string {
	return s.prefix + "-" + strconv.FormatUint(s.n.Add(1), 10)
}

// Func adapts the sequence to the idGenerator hooks the services accept.
func (s *Sequence) Func() func() string {
	return s.Next
}
