// Package testutil provides in-memory fakes of the store, event-bus, and
// rate-limiter interfaces for tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/deskly/deskbot/internal/domain"
	"github.com/deskly/deskbot/internal/repository"
)

// MemUserRepo is an in-memory repository.UserRepository.
type MemUserRepo struct {
	mu     sync.Mutex
	Users  map[string]*domain.User
	Order  []string
	GetErr error
}

func NewMemUserRepo() *MemUserRepo {
	return &MemUserRepo{Users: make(map[string]*domain.User)}
}

func (m *MemUserRepo) Get(_ context.Context, identity string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	u, ok := m.Users[identity]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *MemUserRepo) Upsert(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := domain.ParseRole(string(u.Role)); !ok {
		return fmt.Errorf("%w: unrecognized role %q", domain.ErrConstraint, u.Role)
	}
	if _, exists := m.Users[u.Identity]; !exists {
		m.Order = append(m.Order, u.Identity)
		u.CreatedAt = time.Now()
	}
	cp := *u
	m.Users[u.Identity] = &cp
	return nil
}

func (m *MemUserRepo) Delete(_ context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Users[identity]; !ok {
		return fmt.Errorf("%w: no user found with identity %s", domain.ErrNotFound, identity)
	}
	delete(m.Users, identity)
	return nil
}

func (m *MemUserRepo) ListAll(_ context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []domain.User
	for _, id := range m.Order {
		if u, ok := m.Users[id]; ok {
			users = append(users, *u)
		}
	}
	return users, nil
}

func (m *MemUserRepo) CountAdmins(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.Users {
		if u.Role == domain.RoleAdmin && !u.Blacklisted {
			n++
		}
	}
	return n, nil
}

var _ repository.UserRepository = (*MemUserRepo)(nil)

// MemBookingRepo is an in-memory repository.BookingRepository.
type MemBookingRepo struct {
	mu        sync.Mutex
	Bookings  map[int64]*domain.Booking
	NextID    int64
	CreateErr error
}

func NewMemBookingRepo() *MemBookingRepo {
	return &MemBookingRepo{Bookings: make(map[int64]*domain.Booking), NextID: 1}
}

func (m *MemBookingRepo) Create(_ context.Context, date time.Time, desk int, owner string) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	for _, b := range m.Bookings {
		if b.Date.Equal(date) && b.Desk == desk {
			return nil, fmt.Errorf("%w: desk %d is already booked for %s", domain.ErrConflict, desk, date.Format(domain.DateFormat))
		}
	}
	b := &domain.Booking{
		ID:            m.NextID,
		Date:          date,
		Desk:          desk,
		OwnerIdentity: owner,
		CreatedAt:     time.Now(),
	}
	m.NextID++
	m.Bookings[b.ID] = b
	cp := *b
	return &cp, nil
}

func (m *MemBookingRepo) GetByID(_ context.Context, id int64) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.Bookings[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (m *MemBookingRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Bookings[id]; !ok {
		return fmt.Errorf("%w: no booking found with id %d", domain.ErrNotFound, id)
	}
	delete(m.Bookings, id)
	return nil
}

func (m *MemBookingRepo) ListByOwner(_ context.Context, owner string, since time.Time) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var bs []domain.Booking
	for _, b := range m.Bookings {
		if b.OwnerIdentity == owner && !b.Date.Before(since) {
			bs = append(bs, *b)
		}
	}
	sortBookings(bs)
	return bs, nil
}

func (m *MemBookingRepo) ListAll(_ context.Context, since *time.Time) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var bs []domain.Booking
	for _, b := range m.Bookings {
		if since != nil && b.Date.Before(*since) {
			continue
		}
		bs = append(bs, *b)
	}
	sortBookings(bs)
	return bs, nil
}

func (m *MemBookingRepo) ExistsForOwner(_ context.Context, owner string, date time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.Bookings {
		if b.OwnerIdentity == owner && b.Date.Equal(date) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemBookingRepo) DesksTaken(_ context.Context, date time.Time) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var desks []int
	for _, b := range m.Bookings {
		if b.Date.Equal(date) {
			desks = append(desks, b.Desk)
		}
	}
	sort.Ints(desks)
	return desks, nil
}

func sortBookings(bs []domain.Booking) {
	sort.Slice(bs, func(i, j int) bool {
		if !bs[i].Date.Equal(bs[j].Date) {
			return bs[i].Date.Before(bs[j].Date)
		}
		return bs[i].Desk < bs[j].Desk
	})
}

var _ repository.BookingRepository = (*MemBookingRepo)(nil)
