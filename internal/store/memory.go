package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

// MemoryStore holds the four collections in maps protected by a RWMutex.
// Used for tests and local development; it is not durable.
type MemoryStore struct {
	mu            sync.RWMutex
	tickets       map[string]Ticket // keyed by code
	passes        map[string]Pass
	devices       map[string]Device
	registrations map[string]Registration
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets:       make(map[string]Ticket),
		passes:        make(map[string]Pass),
		devices:       make(map[string]Device),
		registrations: make(map[string]Registration),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) GetTicketByCode(ctx context.Context, code string) (*Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tickets[code]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *MemoryStore) GetTicketBySerial(ctx context.Context, serial string) (*Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *Ticket
	for _, t := range m.tickets {
		if t.Serial != serial {
			continue
		}
		if found != nil {
			return nil, ErrDuplicateTicket
		}
		t := t
		found = &t
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (m *MemoryStore) FindTicketByEmail(ctx context.Context, email string) (*Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tickets {
		if t.Email == email {
			t := t
			return &t, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) PutTicket(ctx context.Context, t Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.Code] = t
	return nil
}

func (m *MemoryStore) SetTicketBoothVisited(ctx context.Context, code string, boothVisited int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[code]
	if !ok {
		return ErrNotFound
	}
	t.BoothVisited = boothVisited
	m.tickets[code] = t
	return nil
}

func (m *MemoryStore) ListTickets(ctx context.Context) ([]Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tickets := make([]Ticket, 0, len(m.tickets))
	for _, t := range m.tickets {
		tickets = append(tickets, t)
	}
	return tickets, nil
}

func (m *MemoryStore) UpsertPass(ctx context.Context, id string, p Pass) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passes[id] = p
	return nil
}

func (m *MemoryStore) TouchPass(ctx context.Context, id string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.passes[id]
	p.UpdatedAt = updatedAt
	m.passes[id] = p
	return nil
}

func (m *MemoryStore) GetPass(ctx context.Context, id string) (*Pass, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.passes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) DeletePass(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.passes, id)
	return nil
}

func (m *MemoryStore) UpsertDevice(ctx context.Context, id string, d Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[id] = d
	return nil
}

func (m *MemoryStore) GetDevice(ctx context.Context, id string) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *MemoryStore) DeleteDevice(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.devices, id)
	return nil
}

func (m *MemoryStore) FindDeviceByPushToken(ctx context.Context, token string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, d := range m.devices {
		if d.PushToken == token {
			return id, nil
		}
	}
	return "", ErrNotFound
}

func (m *MemoryStore) CreateRegistration(ctx context.Context, id string, r Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registrations[id] = r
	return nil
}

func (m *MemoryStore) RegistrationExists(ctx context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.registrations[id]
	return ok, nil
}

func (m *MemoryStore) DeleteRegistration(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.registrations, id)
	return nil
}

func (m *MemoryStore) ListRegistrationsByDevice(ctx context.Context, deviceLibraryIdentifier, passTypeIdentifier string) ([]Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var regs []Registration
	for _, r := range m.registrations {
		if r.DeviceLibraryIdentifier == deviceLibraryIdentifier && r.PassTypeIdentifier == passTypeIdentifier {
			regs = append(regs, r)
		}
	}
	return regs, nil
}

func (m *MemoryStore) ListRegistrationsForDevice(ctx context.Context, deviceLibraryIdentifier string) ([]Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var regs []Registration
	for _, r := range m.registrations {
		if r.DeviceLibraryIdentifier == deviceLibraryIdentifier {
			regs = append(regs, r)
		}
	}
	return regs, nil
}

func (m *MemoryStore) ListRegistrationsBySerials(ctx context.Context, passTypeIdentifier string, serials []string) ([]Registration, error) {
	if len(serials) > MaxInValues {
		return nil, fmt.Errorf("at most %d serials per query, got %d", MaxInValues, len(serials))
	}
	wanted := make(map[string]bool, len(serials))
	for _, s := range serials {
		wanted[s] = true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var regs []Registration
	for _, r := range m.registrations {
		if r.PassTypeIdentifier == passTypeIdentifier && wanted[r.SerialNumber] {
			regs = append(regs, r)
		}
	}
	return regs, nil
}

func (m *MemoryStore) HasRegistrationForDevice(ctx context.Context, deviceLibraryIdentifier string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.registrations {
		if r.DeviceLibraryIdentifier == deviceLibraryIdentifier {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) HasRegistrationForPass(ctx context.Context, passID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.registrations {
		if r.PassID == passID {
			return true, nil
		}
	}
	return false, nil
}
