// Package chat relays line-based group chat over TCP. Clients join one channel
// and every line they send is broadcast to all members of that channel.
package chat

import (
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Member is one joined connection.
type Member struct {
	ID       string
	Identity string
	w        io.Writer
}

// NewMember creates a member that receives broadcasts on w.
func NewMember(identity string, w io.Writer) *Member {
	return &Member{ID: uuid.New().String(), Identity: identity, w: w}
}

// Observer is told about every fan-out the hub performs.
type Observer interface {
	Broadcast(kind string, recipients, failed int)
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithObserver reports fan-outs to o.
func WithObserver(o Observer) HubOption {
	return func(h *Hub) { h.observer = o }
}

// group is one channel. members is only touched under mu; closed is set when
// the last member leaves so late joiners retry against a fresh group.
type group struct {
	mu      sync.Mutex
	members []*Member
	closed  bool
}

// Hub tracks channels and their members. There is no hub-wide lock: each
// channel serializes its own joins, leaves and broadcasts.
type Hub struct {
	groups   sync.Map // channel -> *group
	logger   zerolog.Logger
	observer Observer
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger, opts ...HubOption) *Hub {
	h := &Hub{logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Join adds m to channel and announces it to every member, m included.
func (h *Hub) Join(channel string, m *Member) {
	for {
		v, _ := h.groups.LoadOrStore(channel, &group{})
		g := v.(*group)
		g.mu.Lock()
		if g.closed {
			g.mu.Unlock()
			continue
		}
		g.members = append(g.members, m)
		h.fanoutLocked(channel, g, "join", m.Identity+" has joined the group.")
		g.mu.Unlock()
		h.logger.Info().Str("channel", channel).Str("identity", m.Identity).Msg("member joined")
		return
	}
}

// Leave removes m from channel and announces it to the remaining members. The
// channel is dropped once empty.
func (h *Hub) Leave(channel string, m *Member) {
	v, ok := h.groups.Load(channel)
	if !ok {
		return
	}
	g := v.(*group)
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := -1
	for i, other := range g.members {
		if other == m {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	g.members = append(g.members[:idx], g.members[idx+1:]...)
	h.logger.Info().Str("channel", channel).Str("identity", m.Identity).Msg("member left")

	if len(g.members) == 0 {
		g.closed = true
		h.groups.CompareAndDelete(channel, g)
		return
	}
	h.fanoutLocked(channel, g, "leave", m.Identity+" has left the group.")
}

// Say broadcasts a line from m to every member of channel, m included.
func (h *Hub) Say(channel string, m *Member, line string) {
	h.Broadcast(channel, m.Identity+": "+line)
}

// Broadcast writes text to every member of channel. It returns the number of
// members the line was delivered to.
func (h *Hub) Broadcast(channel, text string) int {
	v, ok := h.groups.Load(channel)
	if !ok {
		return 0
	}
	g := v.(*group)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0
	}
	return h.fanoutLocked(channel, g, "message", text)
}

func (h *Hub) fanoutLocked(channel string, g *group, kind, text string) int {
	payload := []byte(text + "\n")
	delivered, failed := 0, 0
	for _, m := range g.members {
		if _, err := m.w.Write(payload); err != nil {
			failed++
			h.logger.Warn().Err(err).
				Str("channel", channel).
				Str("identity", m.Identity).
				Msg("broadcast write failed")
			continue
		}
		delivered++
	}
	if h.observer != nil {
		h.observer.Broadcast(kind, delivered, failed)
	}
	return delivered
}

// GroupCount returns the number of channels with at least one member.
func (h *Hub) GroupCount() int {
	n := 0
	h.groups.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// MemberCount returns the number of members in channel.
func (h *Hub) MemberCount(channel string) int {
	v, ok := h.groups.Load(channel)
	if !ok {
		return 0
	}
	g := v.(*group)
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

// Channels returns the names of the live channels, sorted.
func (h *Hub) Channels() []string {
	var out []string
	h.groups.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	sort.Strings(out)
	return out
}
