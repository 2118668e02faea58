package roster

import "fmt"

// State is the position of a Machine in the subscription protocol.
type State int

const (
	StateAwaitingHandshake State = iota
	StateRequestingBatch
	StateAwaitingBatchResponse
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAwaitingHandshake:
		return "awaiting_handshake"
	case StateRequestingBatch:
		return "requesting_batch"
	case StateAwaitingBatchResponse:
		return "awaiting_batch_response"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Step is what the caller must do after a message was handled.
type Step struct {
	// Request is the range to subscribe to next, if any.
	Request *Range
	// Discovered counts members that were new to the store.
	Discovered int
	// Done is set once the member list is exhausted.
	Done bool
}

// Machine drives a single connection through the subscription protocol.
// The cursor and store outlive it, so a machine built for a reconnect picks
// up where the previous one stopped.
type Machine struct {
	state  State
	cursor *Cursor
	store  *Store
	sink   Sink
}

func NewMachine(cursor *Cursor, store *Store, sink Sink) *Machine {
	return &Machine{
		state:  StateAwaitingHandshake,
		cursor: cursor,
		store:  store,
		sink:   sink,
	}
}

func (m *Machine) State() State {
	return m.state
}

// Handle applies msg. Messages that do not fit the current state are
// ignored. The only error is a sink failure.
func (m *Machine) Handle(msg Message) (Step, error) {
	switch msg := msg.(type) {
	case Handshake:
		if m.state != StateAwaitingHandshake {
			return Step{}, nil
		}
		return m.request(), nil

	case ListUpdate:
		if m.state != StateAwaitingBatchResponse {
			return Step{}, nil
		}
		return m.handleListUpdate(msg)
	}
	return Step{}, nil
}

// Sent confirms the pending request reached the connection.
func (m *Machine) Sent() {
	if m.state == StateRequestingBatch {
		m.state = StateAwaitingBatchResponse
	}
}

func (m *Machine) handleListUpdate(msg ListUpdate) (Step, error) {
	var (
		step Step
		more bool
	)
	for _, op := range msg.Ops {
		for _, id := range op.MemberIDs {
			if !m.store.Add(id) {
				continue
			}
			step.Discovered++
			if err := m.sink.Emit(id); err != nil {
				return step, fmt.Errorf("%w: emit %s: %v", ErrSinkFailed, id, err)
			}
		}
		// any full op keeps the scrape going, even if others are short
		if op.Full(m.cursor.BatchSize()) {
			more = true
		}
	}

	if !more {
		m.state = StateTerminated
		step.Done = true
		return step, nil
	}

	m.cursor.Advance()
	next := m.request()
	next.Discovered = step.Discovered
	return next, nil
}

func (m *Machine) request() Step {
	r := m.cursor.CurrentRange()
	m.state = StateRequestingBatch
	return Step{Request: &r}
}
