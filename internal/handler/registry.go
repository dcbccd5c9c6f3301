package handler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Sheiden1/hackathon/internal/metrics"
	"github.com/Sheiden1/hackathon/internal/session"
)

const (
	playCustom   = "custom"
	playAssigned = "assigned"
)

// play is one in-memory activity session owned by a user.
type play struct {
	mu         sync.Mutex
	id         string
	ownerID    string
	activityID string
	kind       string
	sess       *session.Session
	// done is set under mu once the result has been handed off. A caller
	// that looked the play up before it was removed must not record again.
	done       bool
	// lastUsed is unix nanoseconds; read by sweep without p.mu.
	lastUsed   atomic.Int64
}

func (p *play) touch() {
	p.lastUsed.Store(time.Now().UnixNano())
}

// registry holds the plays currently in progress.
type registry struct {
	mu      sync.Mutex
	plays   map[string]*play
	metrics *metrics.Metrics
}

func newRegistry(m *metrics.Metrics) *registry {
	return &registry{plays: make(map[string]*play), metrics: m}
}

func (r *registry) add(ownerID, activityID, kind string, sess *session.Session) *play {
	p := &play{
		id:         uuid.NewString(),
		ownerID:    ownerID,
		activityID: activityID,
		kind:       kind,
		sess:       sess,
	}
	p.touch()
	r.mu.Lock()
	r.plays[p.id] = p
	r.gauge()
	r.mu.Unlock()
	return p
}

// get returns the play only when ownerID owns it.
func (r *registry) get(id, ownerID string) *play {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plays[id]
	if !ok || p.ownerID != ownerID {
		return nil
	}
	return p
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	delete(r.plays, id)
	r.gauge()
	r.mu.Unlock()
}

// sweep drops plays idle for longer than idle and returns how many went.
func (r *registry) sweep(idle time.Duration) int {
	cutoff := time.Now().Add(-idle).UnixNano()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, p := range r.plays {
		if p.lastUsed.Load() < cutoff {
			delete(r.plays, id)
			n++
		}
	}
	if n > 0 {
		r.gauge()
	}
	return n
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.plays)
}

// gauge must be called with r.mu held.
func (r *registry) gauge() {
	if r.metrics != nil {
		r.metrics.SessionsActive.Set(float64(len(r.plays)))
	}
}
