// Package cancel owns the cancellation tokens of the main and side stages.
//
// A token is a context.Context. Renewing a scope cancels its previous token
// with ErrSuperseded as the cause and installs a fresh one; renewal is the
// only way a scope's token becomes signalled.
package cancel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aliskhannn/image-compressor/internal/model"
)

// ErrSuperseded is the cancellation cause of a renewed token.
var ErrSuperseded = errors.New("superseded by a newer job")

// Scope identifies a cancellation scope.
type Scope int

const (
	Main Scope = iota
	Side0
	Side1

	numScopes
)

// SideScope returns the scope of side s.
func SideScope(s model.Side) Scope {
	if s == model.SideB {
		return Side1
	}
	return Side0
}

func (s Scope) String() string {
	switch s {
	case Main:
		return "main"
	case Side0:
		return "side0"
	case Side1:
		return "side1"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// Manager holds one token per scope.
type Manager struct {
	mu      sync.Mutex
	root    context.Context
	tokens  [numScopes]context.Context
	cancels [numScopes]context.CancelCauseFunc
}

// NewManager creates a Manager whose tokens derive from root, so cancelling
// root signals every token.
func NewManager(root context.Context) *Manager {
	m := &Manager{root: root}
	for s := Scope(0); s < numScopes; s++ {
		m.tokens[s], m.cancels[s] = context.WithCancelCause(root)
	}
	return m
}

// Renew signals the current token of s and returns a fresh one.
func (m *Manager) Renew(s Scope) context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancels[s](ErrSuperseded)
	m.tokens[s], m.cancels[s] = context.WithCancelCause(m.root)

	return m.tokens[s]
}

// Token returns the current token of s.
func (m *Manager) Token(s Scope) context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[s]
}

// Current reports whether tok is still the live token of s.
func (m *Manager) Current(s Scope, tok context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[s] == tok && tok.Err() == nil
}

// IsSignal reports whether err is a cancellation outcome rather than a failure.
func IsSignal(err error) bool {
	return errors.Is(err, ErrSuperseded) || errors.Is(err, context.Canceled)
}

// Err returns the cancellation outcome of tok, or nil while it is live.
func Err(tok context.Context) error {
	if tok.Err() == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", tok.Err(), context.Cause(tok))
}
