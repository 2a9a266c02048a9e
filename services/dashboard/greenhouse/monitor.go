package greenhouse

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/rtdb"
)

// Banner messages shown in place of the last-update line.
const (
	MsgConnectionLost = "Connection to the realtime store lost. Retrying..."
	MsgNoData         = "No data received from the realtime store. Check your device and database."
	MsgReadFailed     = "Failed to read data from the realtime store."
	MsgWaiting        = "Waiting for data..."
	MsgLoading        = "Loading..."
)

const lastUpdatedLayout = "Jan 2, 2006 3:04 PM"

// Indicator is the connection badge plus the line next to it.
type Indicator struct {
	Label   string `json:"label"`
	Online  bool   `json:"online"`
	Message string `json:"message"`
	Loading bool   `json:"loading"`
	IsError bool   `json:"is_error"`
}

// Indicator derives the status line. While disconnected the last update is
// never presented as current.
func (s State) Indicator(loc *time.Location) Indicator {
	ind := Indicator{Label: "Online", Online: s.Connected, Loading: s.Loading}
	if !s.Connected {
		ind.Label = "Offline"
	}
	if loc == nil {
		loc = time.UTC
	}

	switch {
	case s.Loading:
		ind.Message = MsgLoading
	case s.Error != "":
		ind.Message = s.Error
		ind.IsError = true
	case !s.Connected:
		ind.Message = MsgConnectionLost
		ind.IsError = true
	case s.System.LastUpdate > 0:
		ind.Message = "Last updated: " + time.Unix(s.System.LastUpdate, 0).In(loc).Format(lastUpdatedLayout)
	default:
		ind.Message = MsgWaiting
	}
	return ind
}

// Monitor owns the dashboard state. It is fed by a root subscription and the
// connection stream of a realtime store, and fans state changes out to listeners.
type Monitor struct {
	store rtdb.Store
	log   *zap.Logger

	mu        sync.RWMutex
	state     State
	listeners map[uint64]func(State)
	nextID    uint64
	cancels   []rtdb.CancelFunc
}

// NewMonitor creates a monitor in the loading state.
func NewMonitor(store rtdb.Store, logger *zap.Logger) *Monitor {
	return &Monitor{
		store:     store,
		log:       logger.Named("monitor"),
		state:     State{Loading: true, Connected: true},
		listeners: make(map[uint64]func(State)),
	}
}

// Start subscribes to the store. Read failures never stop the monitor; they
// become the error banner until the next successful delivery.
func (m *Monitor) Start() {
	cancelConn := m.store.SubscribeConnection(m.onConnection)
	cancelRoot := m.store.Subscribe("", m.onValue, m.onError)

	m.mu.Lock()
	m.cancels = append(m.cancels, cancelConn, cancelRoot)
	m.mu.Unlock()
}

// Stop removes the store subscriptions.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancels := m.cancels
	m.cancels = nil
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// State returns a copy of the current state.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Subscribe registers fn for every state change and returns its cancel func.
func (m *Monitor) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

func (m *Monitor) onValue(root rtdb.Snapshot) {
	m.update(func(s *State) {
		s.Loading = false
		if !root.Exists() {
			s.Error = MsgNoData
			return
		}
		decoded := Decode(root)
		s.Sensors = decoded.Sensors
		s.Actuators = decoded.Actuators
		s.Controls = decoded.Controls
		s.System = decoded.System
		if s.Connected {
			s.Error = ""
		}
	})
}

func (m *Monitor) onError(err error) {
	m.log.Warn("realtime read error", zap.Error(err))
	m.update(func(s *State) {
		s.Loading = false
		s.Error = MsgReadFailed
	})
}

func (m *Monitor) onConnection(connected bool) {
	if connected {
		m.log.Info("realtime store connected")
	} else {
		m.log.Warn("realtime store connection lost")
	}
	m.update(func(s *State) {
		s.Connected = connected
		if !connected {
			s.Error = MsgConnectionLost
		} else if s.Error == MsgConnectionLost {
			s.Error = ""
		}
	})
}

func (m *Monitor) update(apply func(*State)) {
	m.mu.Lock()
	apply(&m.state)
	state := m.state
	fns := make([]func(State), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}
