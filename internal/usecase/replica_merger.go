package usecase

import (
	"sort"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/repository"
)

var mergedReplicas = []repository.Replica{repository.ReplicaSubcollection, repository.ReplicaFlat}

// replicaMerger reconciles the two message replicas of one conversation.
// It is not safe for concurrent use; a message stream drives it from a
// single queue.
type replicaMerger struct {
	sources map[repository.Replica]map[string]*entity.Message
	ready   map[repository.Replica]bool
	order   map[string]int
	next    int
}

func newReplicaMerger() *replicaMerger {
	m := &replicaMerger{
		sources: make(map[repository.Replica]map[string]*entity.Message, len(mergedReplicas)),
		ready:   make(map[repository.Replica]bool, len(mergedReplicas)),
		order:   make(map[string]int),
	}
	for _, r := range mergedReplicas {
		m.sources[r] = make(map[string]*entity.Message)
	}
	return m
}

// apply replaces the whole contribution of one replica.
func (m *replicaMerger) apply(replica repository.Replica, messages []*entity.Message) {
	contribution := make(map[string]*entity.Message, len(messages))
	for _, msg := range messages {
		if msg == nil || msg.ID == "" {
			continue
		}
		contribution[msg.ID] = msg
		if _, seen := m.order[msg.ID]; !seen {
			m.order[msg.ID] = m.next
			m.next++
		}
	}
	m.sources[replica] = contribution
	m.ready[replica] = true
}

// fail opens the gate for a replica whose listener errored. Whatever it
// contributed before stays in place.
func (m *replicaMerger) fail(replica repository.Replica) {
	m.ready[replica] = true
}

func (m *replicaMerger) initialized() bool {
	for _, r := range mergedReplicas {
		if !m.ready[r] {
			return false
		}
	}
	return true
}

// merged returns the reconciled, timestamp ordered view. ok is false until
// both replicas have reported at least once.
func (m *replicaMerger) merged() (out []*entity.Message, ok bool) {
	if !m.initialized() {
		return nil, false
	}

	sub := m.sources[repository.ReplicaSubcollection]
	flat := m.sources[repository.ReplicaFlat]

	out = make([]*entity.Message, 0, len(sub)+len(flat))
	for id, msg := range sub {
		if other, exists := flat[id]; exists && other.Timestamp.After(msg.Timestamp) {
			msg = other
		}
		out = append(out, msg.Clone())
	}
	for id, msg := range flat {
		if _, exists := sub[id]; !exists {
			out = append(out, msg.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return m.order[out[i].ID] < m.order[out[j].ID]
	})
	return out, true
}
