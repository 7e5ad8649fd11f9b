package streaming

import (
	"errors"
	"log/slog"
	"sync"
)

// Manager is the registry of in-flight plans on this node. A future is
// dropped from the registry once it resolves.
type Manager struct {
	mu     sync.RWMutex
	plans  map[PlanID]*ResultFuture
	logger *slog.Logger
}

// NewManager returns an empty registry.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		plans:  make(map[PlanID]*ResultFuture),
		logger: logger,
	}
}

// Register makes f discoverable by its plan id until it resolves.
func (m *Manager) Register(f *ResultFuture) error {
	m.mu.Lock()
	if _, exists := m.plans[f.PlanID]; exists {
		m.mu.Unlock()
		return errorFor(ErrPlanExists, f.PlanID.String())
	}
	m.plans[f.PlanID] = f
	m.mu.Unlock()

	m.untrackOnCompletion(f)
	return nil
}

func (m *Manager) untrackOnCompletion(f *ResultFuture) {
	f.AddEventListener(ListenerFunc(func(ev Event) {
		if _, ok := ev.(*PlanCompleteEvent); ok {
			m.remove(f)
		}
	}))
}

func (m *Manager) remove(f *ResultFuture) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.plans[f.PlanID] == f {
		delete(m.plans, f.PlanID)
	}
}

// Get returns the in-flight future of plan id.
func (m *Manager) Get(id PlanID) (*ResultFuture, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.plans[id]
	return f, ok
}

// Active returns every in-flight future, in no particular order.
func (m *Manager) Active() []*ResultFuture {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*ResultFuture, 0, len(m.plans))
	for _, f := range m.plans {
		out = append(out, f)
	}
	return out
}

// Init creates the future of a plan this node initiates over coordinator,
// registers it and attaches listeners.
func (m *Manager) Init(id PlanID, description string, listeners []Listener, coordinator *Coordinator) (*ResultFuture, error) {
	f := NewResultFuture(id, description, coordinator, WithLogger(m.logger))
	for _, l := range listeners {
		f.AddEventListener(l)
	}
	if err := m.Register(f); err != nil {
		return nil, err
	}
	m.logger.Info("executing streaming plan", "plan_id", id.String(), "description", description,
		"sessions", len(coordinator.Peers()))
	return f, nil
}

// InitReceivingSide joins a plan initiated by from. The first session of a
// plan creates a receive-only future for it; later sessions reuse it. A
// future that resolved before the session could register is replaced by a
// fresh one. The returned session is registered but not yet prepared.
func (m *Manager) InitReceivingSide(sessionIndex int, id PlanID, description, from string, listeners []Listener) (*ResultFuture, *Session, error) {
	for {
		f := m.receivingFuture(id, description, from, listeners)
		session, err := NewSession(f, from, sessionIndex)
		if errors.Is(err, ErrPlanResolved) {
			m.remove(f)
			m.logger.Debug("plan resolved before session joined, starting a new one", "plan_id", id.String(), "from", from)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		m.logger.Info("received streaming plan", "plan_id", id.String(), "from", from, "session_index", sessionIndex)
		return f, session, nil
	}
}

// receivingFuture returns the registered future of plan id, creating a
// receive-only one if there is none.
func (m *Manager) receivingFuture(id PlanID, description, from string, listeners []Listener) *ResultFuture {
	m.mu.Lock()
	f, exists := m.plans[id]
	if !exists {
		f = NewResultFuture(id, description, NewCoordinator(true), WithLogger(m.logger))
		m.plans[id] = f
	}
	m.mu.Unlock()

	if !exists {
		m.untrackOnCompletion(f)
		for _, l := range listeners {
			f.AddEventListener(l)
		}
		m.logger.Info("creating new streaming plan", "plan_id", id.String(), "description", description, "from", from)
	}
	return f
}
