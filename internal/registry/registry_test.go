package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-chat/internal/domain"
)

type fakeTransport struct {
	id     string
	closed bool
}

func (f *fakeTransport) ID() string             { return f.id }
func (f *fakeTransport) Send(data []byte) error { return nil }
func (f *fakeTransport) Close()                 { f.closed = true }

func participant(id string) domain.Participant {
	return domain.Participant{ID: id, Username: "user-" + id}
}

func TestRegistry_UpsertAndLookup(t *testing.T) {
	r := NewRegistry()
	ta := &fakeTransport{id: "conn-a"}

	s, displaced := r.Upsert(participant("a"), ta)
	assert.Empty(t, displaced)
	assert.Equal(t, "a", s.Participant.ID)
	assert.False(t, s.JoinedAt.IsZero())

	got, err := r.Lookup("a")
	require.NoError(t, err)
	assert.Same(t, ta, got.Transport)

	_, err = r.Lookup("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_DuplicateJoinReplaces(t *testing.T) {
	r := NewRegistry()
	first := &fakeTransport{id: "tab-1"}
	second := &fakeTransport{id: "tab-2"}

	r.Upsert(participant("a"), first)
	_, displaced := r.Upsert(participant("a"), second)

	require.Len(t, displaced, 1)
	assert.Same(t, first, displaced[0].Transport)
	assert.False(t, first.closed, "superseded transport is left open")
	assert.Equal(t, 1, r.Len())

	// closing the ghost tab must not evict the live session
	_, ok := r.RemoveByTransport(first)
	assert.False(t, ok)

	got, err := r.Lookup("a")
	require.NoError(t, err)
	assert.Same(t, second, got.Transport)
}

func TestRegistry_TransportRebindsToNewParticipant(t *testing.T) {
	r := NewRegistry()
	tr := &fakeTransport{id: "conn"}

	r.Upsert(participant("a"), tr)
	_, displaced := r.Upsert(participant("b"), tr)

	require.Len(t, displaced, 1)
	assert.Equal(t, "a", displaced[0].Participant.ID)

	_, err := r.Lookup("a")
	assert.ErrorIs(t, err, ErrNotFound)

	s, ok := r.RemoveByTransport(tr)
	require.True(t, ok)
	assert.Equal(t, "b", s.Participant.ID)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_RemoveByParticipant(t *testing.T) {
	r := NewRegistry()
	tr := &fakeTransport{id: "conn"}
	r.Upsert(participant("a"), tr)

	s, ok := r.RemoveByParticipant("a")
	require.True(t, ok)
	assert.Equal(t, "a", s.Participant.ID)

	_, ok = r.RemoveByTransport(tr)
	assert.False(t, ok, "transport index cleared with the session")

	_, ok = r.RemoveByParticipant("a")
	assert.False(t, ok)
}

func TestRegistry_SnapshotOrderAndIsolation(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	r.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for _, id := range []string{"c", "a", "b"} {
		r.Upsert(participant(id), &fakeTransport{id: id})
	}

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "c", snap[0].Participant.ID)
	assert.Equal(t, "a", snap[1].Participant.ID)
	assert.Equal(t, "b", snap[2].Participant.ID)

	r.RemoveByParticipant("a")
	assert.Len(t, snap, 3, "snapshot unaffected by later mutation")

	presence := r.Presence()
	require.Len(t, presence, 2)
	assert.Equal(t, base.Add(time.Second), presence[0].LastSeen)
}

func TestRegistry_ConcurrentMutationDuringIteration(t *testing.T) {
	r := NewRegistry()
	transports := make([]*fakeTransport, 100)
	for i := range transports {
		transports[i] = &fakeTransport{id: fmt.Sprintf("conn-%d", i)}
		r.Upsert(participant(fmt.Sprintf("p-%d", i)), transports[i])
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, tr := range transports {
			r.RemoveByTransport(tr)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			for _, s := range r.Snapshot() {
				_ = s.Transport.Send(nil)
			}
		}
	}()
	wg.Wait()

	assert.Equal(t, 0, r.Len())
}
