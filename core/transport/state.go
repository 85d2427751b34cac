package transport

import "sync"

var allowedTransitions = map[ConnectionState][]ConnectionState{
	StateIdle:         {StateConnecting, StateDisconnected},
	StateConnecting:   {StateConnected, StateDisconnected, StateError},
	StateConnected:    {StateReconnecting, StateDisconnected, StateError},
	StateReconnecting: {StateConnected, StateDisconnected, StateError},
	StateDisconnected: {StateConnecting},
	StateError:        {StateConnecting, StateDisconnected},
}

// StateTracker holds the connection state of an adapter and notifies the
// observer of every accepted transition exactly once.
//
// Notifications are serialised in transition order. The observer must not
// call Transition.
type StateTracker struct {
	mu       sync.Mutex
	state    ConnectionState
	observer func(StateChange)

	notifyMu sync.Mutex
}

func (t *StateTracker) State() ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *StateTracker) Observe(observer func(StateChange)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observer = observer
}

// Transition moves to change.State and notifies the observer. Repeated and
// invalid transitions are dropped and reported as false.
func (t *StateTracker) Transition(change StateChange) bool {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	from := t.state
	if !canTransition(from, change.State) {
		t.mu.Unlock()
		if from != change.State {
			logger.Debug("ignoring invalid transport state transition",
				"from", from.String(),
				"to", change.State.String())
		}
		return false
	}
	t.state = change.State
	observer := t.observer
	t.mu.Unlock()

	if observer != nil {
		observer(change)
	}
	return true
}

func canTransition(from, to ConnectionState) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
