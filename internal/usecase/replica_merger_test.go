package usecase

import (
	"testing"
	"time"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplicaMergerGate(t *testing.T) {
	m := newReplicaMerger()
	_, ok := m.merged()
	assert.False(t, ok)

	m.apply(repository.ReplicaFlat, nil)
	_, ok = m.merged()
	assert.False(t, ok)

	m.fail(repository.ReplicaSubcollection)
	out, ok := m.merged()
	assert.True(t, ok)
	assert.Empty(t, out)
}

func TestReplicaMergerLastWriteWins(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		sub      time.Time
		flat     time.Time
		wantText string
	}{
		{"flat newer", t0, t0.Add(time.Millisecond), "flat"},
		{"subcollection newer", t0.Add(time.Millisecond), t0, "sub"},
		{"equal prefers subcollection", t0, t0, "sub"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newReplicaMerger()
			m.apply(repository.ReplicaSubcollection, []*entity.Message{{ID: "m", Text: "sub", Timestamp: tt.sub}})
			m.apply(repository.ReplicaFlat, []*entity.Message{{ID: "m", Text: "flat", Timestamp: tt.flat}})

			out, ok := m.merged()
			require.True(t, ok)
			require.Len(t, out, 1)
			assert.Equal(t, tt.wantText, out[0].Text)
		})
	}
}

func TestReplicaMergerFailureKeepsPreviousContribution(t *testing.T) {
	m := newReplicaMerger()
	m.apply(repository.ReplicaFlat, []*entity.Message{{ID: "a"}})
	m.apply(repository.ReplicaSubcollection, []*entity.Message{{ID: "b"}})
	m.fail(repository.ReplicaFlat)

	out, ok := m.merged()
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"a", "b"}, ids(out))
}

func TestReplicaMergerReturnsCopies(t *testing.T) {
	m := newReplicaMerger()
	m.apply(repository.ReplicaSubcollection, []*entity.Message{{ID: "a", Text: "original"}})
	m.apply(repository.ReplicaFlat, nil)

	out, _ := m.merged()
	out[0].Text = "mutated"

	again, _ := m.merged()
	assert.Equal(t, "original", again[0].Text)
}
