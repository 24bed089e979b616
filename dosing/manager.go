package dosing

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownOrder is returned for an order ID no station is running for.
	ErrUnknownOrder = errors.New("order does not exist")
	// ErrOrderExists is returned when opening an order that is still being dosed.
	ErrOrderExists = errors.New("order is already open")
)

// Manager keeps one Station per open order.
type Manager struct {
	mu       sync.RWMutex
	cfg      StationConfig
	stations map[string]*Station
}

// NewManager creates a Manager whose stations share cfg.
func NewManager(cfg StationConfig) *Manager {
	return &Manager{
		cfg:      cfg,
		stations: make(map[string]*Station),
	}
}

// Open starts a station for order. A completed order with the same ID is
// replaced; one still in progress is not.
func (m *Manager) Open(order Order) (*Station, error) {
	if order.OrderID == "" {
		return nil, errors.New("order id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.stations[order.OrderID]; ok {
		if !prev.State().Order.Complete {
			return nil, fmt.Errorf("%w: %s", ErrOrderExists, order.OrderID)
		}
		prev.Close()
	}

	st, err := NewStation(order, m.cfg)
	if err != nil {
		return nil, err
	}
	m.stations[order.OrderID] = st
	return st, nil
}

// Get returns the station for orderID.
func (m *Manager) Get(orderID string) (*Station, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.stations[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	return st, nil
}

// States returns the state of every open order, sorted by order ID.
func (m *Manager) States() []State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]State, 0, len(m.stations))
	for _, st := range m.stations {
		out = append(out, st.State())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order.OrderID < out[j].Order.OrderID })
	return out
}

// Close stops every station.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, st := range m.stations {
		st.Close()
		delete(m.stations, id)
	}
}
