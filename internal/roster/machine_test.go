package roster

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestMachine(t *testing.T, batchSize int) (*Machine, *Store, *recordingSink) {
	t.Helper()
	cursor, err := NewCursor(batchSize)
	require.NoError(t, err)
	store := NewStore()
	sink := &recordingSink{}
	return NewMachine(cursor, store, sink), store, sink
}

func mustClassify(t *testing.T, raw []byte) Message {
	t.Helper()
	msg, err := Classify(raw)
	require.NoError(t, err)
	return msg
}

func TestMachineHandshakeRequestsFirstRange(t *testing.T) {
	m, _, _ := newTestMachine(t, 25)
	require.Equal(t, StateAwaitingHandshake, m.State())

	step, err := m.Handle(Handshake{})
	require.NoError(t, err)
	require.Equal(t, &Range{Start: 0, End: 24}, step.Request)
	require.Equal(t, StateRequestingBatch, m.State())

	m.Sent()
	require.Equal(t, StateAwaitingBatchResponse, m.State())

	// a second handshake is ignored
	step, err = m.Handle(Handshake{})
	require.NoError(t, err)
	require.Equal(t, Step{}, step)
	require.Equal(t, StateAwaitingBatchResponse, m.State())
}

func TestMachineIgnoresListUpdateBeforeHandshake(t *testing.T) {
	m, store, sink := newTestMachine(t, 2)

	step, err := m.Handle(mustClassify(t, listFrame([]string{"u1", "u2"})))
	require.NoError(t, err)
	require.Equal(t, Step{}, step)
	require.Zero(t, store.Len())
	require.Empty(t, sink.ids)
	require.Equal(t, StateAwaitingHandshake, m.State())
}

func TestMachineFullBatchAdvances(t *testing.T) {
	m, store, sink := newTestMachine(t, 3)
	_, _ = m.Handle(Handshake{})
	m.Sent()

	step, err := m.Handle(mustClassify(t, listFrame([]string{"u1", "u2", "u3"})))
	require.NoError(t, err)
	require.False(t, step.Done)
	require.Equal(t, 3, step.Discovered)
	require.Equal(t, &Range{Start: 3, End: 5}, step.Request)
	require.Equal(t, StateRequestingBatch, m.State())
	require.Equal(t, 3, store.Len())
	require.Equal(t, []string{"u1", "u2", "u3"}, sink.ids)
}

func TestMachineShortBatchTerminates(t *testing.T) {
	m, _, sink := newTestMachine(t, 3)
	_, _ = m.Handle(Handshake{})
	m.Sent()

	step, err := m.Handle(mustClassify(t, listFrame([]string{"u1", "u1"})))
	require.NoError(t, err)
	require.True(t, step.Done)
	require.Nil(t, step.Request)
	require.Equal(t, 1, step.Discovered)
	require.Equal(t, []string{"u1"}, sink.ids)
	require.Equal(t, StateTerminated, m.State())

	// terminated is absorbing
	step, err = m.Handle(Handshake{})
	require.NoError(t, err)
	require.Equal(t, Step{}, step)
	step, err = m.Handle(mustClassify(t, listFrame([]string{"u7", "u8", "u9"})))
	require.NoError(t, err)
	require.Equal(t, Step{}, step)
	require.Equal(t, []string{"u1"}, sink.ids)
}

func TestMachineEmptyUpdateTerminates(t *testing.T) {
	m, _, _ := newTestMachine(t, 25)
	_, _ = m.Handle(Handshake{})
	m.Sent()

	step, err := m.Handle(ListUpdate{})
	require.NoError(t, err)
	require.True(t, step.Done)
}

// One full op keeps the scrape going even when another op of the same
// update is short.
func TestMachineAnyFullOpContinues(t *testing.T) {
	m, _, _ := newTestMachine(t, 2)
	_, _ = m.Handle(Handshake{})
	m.Sent()

	step, err := m.Handle(mustClassify(t, listFrame([]string{"u1"}, []string{"u2", "u3"})))
	require.NoError(t, err)
	require.False(t, step.Done)
	require.Equal(t, &Range{Start: 2, End: 3}, step.Request)
}

// Group headers count toward the page size even though they are not members.
func TestMachineGroupHeadersCountTowardBatch(t *testing.T) {
	m, store, _ := newTestMachine(t, 3)
	_, _ = m.Handle(Handshake{})
	m.Sent()

	step, err := m.Handle(mustClassify(t, listFrame([]string{"", "u1", "u2"})))
	require.NoError(t, err)
	require.False(t, step.Done)
	require.Equal(t, 2, store.Len())
}

func TestMachineOtherIsNoop(t *testing.T) {
	m, _, _ := newTestMachine(t, 3)
	step, err := m.Handle(Other{Op: 11})
	require.NoError(t, err)
	require.Equal(t, Step{}, step)
	require.Equal(t, StateAwaitingHandshake, m.State())
}

func TestMachineSinkFailure(t *testing.T) {
	m, _, sink := newTestMachine(t, 3)
	sink.err = errors.New("disk full")
	_, _ = m.Handle(Handshake{})
	m.Sent()

	_, err := m.Handle(mustClassify(t, listFrame([]string{"u1"})))
	require.ErrorIs(t, err, ErrSinkFailed)
}
