package monitor

import (
	"sync/atomic"
	"time"

	"github.com/obsidianstack/agentwatch/pkg/types"
)

// Callback receives copies of every snapshot and of the active alerts after
// each recompute pass.
type Callback func(snapshots map[string]*types.HealthSnapshot, alerts []*types.HealthAlert)

// Subscription identifies a registered Callback.
type Subscription struct {
	id uint64
}

type subscriber struct {
	fn   Callback
	busy atomic.Bool
}

// Subscribe registers fn. Each invocation runs on its own goroutine; a panic
// is logged and swallowed. While an invocation is still running, later
// passes skip that subscriber.
func (m *Monitor) Subscribe(fn Callback) Subscription {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.nextSub++
	m.subs[m.nextSub] = &subscriber{fn: fn}
	return Subscription{id: m.nextSub}
}

// Unsubscribe removes sub and reports whether it was registered.
func (m *Monitor) Unsubscribe(sub Subscription) bool {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if _, ok := m.subs[sub.id]; !ok {
		return false
	}
	delete(m.subs, sub.id)
	return true
}

// publish fans the pass result out to every subscriber. Each one gets its
// own copy of the data.
func (m *Monitor) publish(snaps map[string]*types.HealthSnapshot, active []*types.HealthAlert, timeout time.Duration) {
	m.subMu.Lock()
	subs := make(map[uint64]*subscriber, len(m.subs))
	for id, s := range m.subs {
		subs[id] = s
	}
	m.subMu.Unlock()

	first := true
	for id, s := range subs {
		if !s.busy.CompareAndSwap(false, true) {
			m.log.Warn("monitor: subscriber still busy, skipping pass", "subscription", id)
			continue
		}
		sn, al := snaps, active
		if !first {
			sn, al = cloneState(snaps, active)
		}
		first = false
		go m.invoke(id, s, sn, al, timeout)
	}
}

func (m *Monitor) invoke(id uint64, s *subscriber, snaps map[string]*types.HealthSnapshot, active []*types.HealthAlert, timeout time.Duration) {
	defer s.busy.Store(false)

	slow := time.AfterFunc(timeout, func() {
		m.log.Warn("monitor: subscriber exceeded timeout", "subscription", id, "timeout", timeout)
	})
	defer slow.Stop()

	defer func() {
		if r := recover(); r != nil {
			m.log.Error("monitor: subscriber panicked", "subscription", id, "panic", r)
		}
	}()
	s.fn(snaps, active)
}

func cloneState(snaps map[string]*types.HealthSnapshot, active []*types.HealthAlert) (map[string]*types.HealthSnapshot, []*types.HealthAlert) {
	sn := make(map[string]*types.HealthSnapshot, len(snaps))
	for id, s := range snaps {
		sn[id] = s.Clone()
	}
	al := make([]*types.HealthAlert, len(active))
	for i, a := range active {
		al[i] = a.Clone()
	}
	return sn, al
}
