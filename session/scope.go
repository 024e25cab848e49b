package session

import (
	"github.com/lithammer/shortuuid/v4"
)

// Scope is a short-lived unit-of-work identifier: one per HTTP request
// or one per fan-out work item. A scope references a session only
// through the registry; it never owns one, and many scopes may attach
// to the same session.
type Scope struct {
	ID string
	// Parent links a fan-out child scope to the scope that spawned it.
	// Diagnostic only.
	Parent *Scope
}

// Factory creates scopes with fresh unique identifiers.
type Factory interface {
	NewScope() *Scope
	NewChildScope(parent *Scope) *Scope
}

type scopeFactory struct{}

// NewFactory returns the default scope factory.
func NewFactory() Factory {
	return scopeFactory{}
}

func (scopeFactory) NewScope() *Scope {
	return &Scope{ID: "scp_" + shortuuid.New()}
}

func (scopeFactory) NewChildScope(parent *Scope) *Scope {
	return &Scope{ID: "scp_" + shortuuid.New(), Parent: parent}
}

// Root walks the parent chain to the originating scope.
func (s *Scope) Root() *Scope {
	cur := s
	for cur.Parent != nil {
		cur = cur.Parent
	}
	return cur
}
