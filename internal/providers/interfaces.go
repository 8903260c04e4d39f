package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/tributary-ai/model-router/internal/types"
)

var ErrProviderNotFound = errors.New("provider not configured")

// StatusError carries the HTTP status a provider answered with
type StatusError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %v", e.Provider, e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Retryable reports whether another model may succeed where this one failed.
// Only malformed requests (4xx other than auth, rate limit and timeouts) are
// considered final.
func Retryable(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return true
	}
	switch {
	case se.StatusCode == http.StatusBadRequest,
		se.StatusCode == http.StatusUnprocessableEntity,
		se.StatusCode == http.StatusRequestEntityTooLarge:
		return false
	default:
		return true
	}
}

// Core provider interface - all providers must implement
type LLMProvider interface {
	Name() string
	ChatCompletion(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error)
	HealthCheck(ctx context.Context) error
}

// Set holds the configured provider clients keyed by provider id
type Set struct {
	mu        sync.RWMutex
	providers map[string]LLMProvider
}

func NewSet(list ...LLMProvider) *Set {
	s := &Set{providers: make(map[string]LLMProvider, len(list))}
	for _, p := range list {
		s.Add(p)
	}
	return s
}

// Add registers p under its own name, replacing any previous client
func (s *Set) Add(p LLMProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.Name()] = p
}

func (s *Set) Get(name string) (LLMProvider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return p, nil
}

// Names returns the configured provider ids, sorted
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EstimateTokens is the rough chars/4 estimate used when a provider
// returns no usage block
func EstimateTokens(messages []types.Message) int {
	chars := 0
	for _, msg := range messages {
		chars += len(msg.Text()) + len(msg.Role)
	}
	return (chars + 3) / 4
}
