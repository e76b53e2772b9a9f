package memory

import (
	"fmt"
	"sync"

	"daq-trigger/internal/trigger/application"
	trigger "daq-trigger/internal/trigger/domain"
)

// Registry resolves connection names to in-process queues and feeds.
type Registry struct {
	mu         sync.RWMutex
	candidates map[string]*Queue[trigger.Candidate]
	decisions  map[string]*Queue[trigger.Decision]
	inhibits   map[string]*InhibitFeed
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		candidates: make(map[string]*Queue[trigger.Candidate]),
		decisions:  make(map[string]*Queue[trigger.Decision]),
		inhibits:   make(map[string]*InhibitFeed),
	}
}

// AddCandidateQueue registers q under name.
func (r *Registry) AddCandidateQueue(name string, q *Queue[trigger.Candidate]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candidates[name] = q
}

// AddDecisionQueue registers q under name.
func (r *Registry) AddDecisionQueue(name string, q *Queue[trigger.Decision]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions[name] = q
}

// AddInhibitFeed registers f under name.
func (r *Registry) AddInhibitFeed(name string, f *InhibitFeed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inhibits[name] = f
}

// CandidateSource implements application.Connections.
func (r *Registry) CandidateSource(name string) (application.CandidateSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.candidates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", application.ErrUnknownConnection, name)
	}
	return q, nil
}

// DecisionSink implements application.Connections.
func (r *Registry) DecisionSink(name string) (application.DecisionSink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.decisions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", application.ErrUnknownConnection, name)
	}
	return q, nil
}

// InhibitSource implements application.Connections.
func (r *Registry) InhibitSource(name string) (application.InhibitSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.inhibits[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", application.ErrUnknownConnection, name)
	}
	return f, nil
}
