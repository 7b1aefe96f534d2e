package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/mailpay-labs/mailpay/internal/domain/payment"
)

// Memory is an in-memory PaymentStore for tests and local development. All
// reads and writes copy the record so callers can never mutate stored state
// through a returned pointer.
type Memory struct {
	mu       sync.RWMutex
	payments map[string]payment.Payment
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{payments: make(map[string]payment.Payment)}
}

func (m *Memory) CreatePayment(_ context.Context, p *payment.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = *p
	return nil
}

func (m *Memory) UpdatePayment(_ context.Context, p *payment.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.ID]; !ok {
		return ErrPaymentNotFound
	}
	m.payments[p.ID] = *p
	return nil
}

func (m *Memory) GetPayment(_ context.Context, id string) (*payment.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return &p, nil
}

func (m *Memory) ListPaymentsByEmail(_ context.Context, email string) ([]*payment.Payment, error) {
	return m.list(func(p payment.Payment) bool { return p.RecipientEmail == email })
}

func (m *Memory) ListPaymentsBySender(_ context.Context, sender string) ([]*payment.Payment, error) {
	return m.list(func(p payment.Payment) bool { return p.SenderAddress == sender })
}

func (m *Memory) list(match func(payment.Payment) bool) ([]*payment.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*payment.Payment
	for _, p := range m.payments {
		if match(p) {
			p := p
			out = append(out, &p)
		}
	}
	// Newest first, id as tiebreaker for a stable order.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
