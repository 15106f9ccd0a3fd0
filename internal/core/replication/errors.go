package replication

import "errors"

var (
	ErrNotAuthority  = errors.New("local peer is not the writer of this value")
	ErrDuplicate     = errors.New("value already registered")
	ErrUnknownField  = errors.New("unknown replicated field")
	ErrInvalidPolicy = errors.New("invalid write policy")
)
