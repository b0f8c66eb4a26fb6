package store

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"parkbook/src/models"
	"parkbook/src/types"

	"github.com/google/uuid"
)

// MemoryStore is the in-memory Store used by the service tests and by local
// development without a database. A single mutex serializes every
// read-modify-write, which makes the optimistic-concurrency contract trivially
// correct: a transition observes the record's version and no other writer can
// slip in between read and write.
type MemoryStore struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*models.Booking
	threads  map[uuid.UUID]*models.MessageThread
	messages map[uuid.UUID][]*models.Message
	pub      Publisher
}

func NewMemoryStore(pub Publisher) *MemoryStore {
	return &MemoryStore{
		bookings: make(map[uuid.UUID]*models.Booking),
		threads:  make(map[uuid.UUID]*models.MessageThread),
		messages: make(map[uuid.UUID][]*models.Message),
		pub:      pub,
	}
}

func cloneBooking(b *models.Booking) *models.Booking {
	cp := *b
	if b.Payment.ProcessorHoldId != nil {
		v := *b.Payment.ProcessorHoldId
		cp.Payment.ProcessorHoldId = &v
	}
	if b.Payment.ExpiresAt != nil {
		v := *b.Payment.ExpiresAt
		cp.Payment.ExpiresAt = &v
	}
	if b.Payment.PendingCaptureAmount != nil {
		v := *b.Payment.PendingCaptureAmount
		cp.Payment.PendingCaptureAmount = &v
	}
	if b.Notification.LastFiredAt != nil {
		v := *b.Notification.LastFiredAt
		cp.Notification.LastFiredAt = &v
	}
	cp.Renter = nil
	cp.Threads = nil
	return &cp
}

func cloneThread(t *models.MessageThread) *models.MessageThread {
	cp := *t
	cp.Booking = nil
	cp.Messages = nil
	return &cp
}

func (s *MemoryStore) publish(b *models.Booking) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(TOPIC_BOOKING_TRANSITIONS, transitionEvent(b)); err != nil {
		log.Printf("[store] Error publishing transition for %s: %s\n", b.ID, err.Error())
	}
}

func (s *MemoryStore) Create(_ context.Context, b *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	s.bookings[b.ID] = cloneBooking(b)
	s.publish(b)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBooking(b), nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Booking
	for _, b := range s.bookings {
		if f.RenterID != nil && b.RenterID != *f.RenterID {
			continue
		}
		if f.Status != nil && b.Status != *f.Status {
			continue
		}
		if f.EndsOnOrAfter != nil && b.EndsAt.Before(*f.EndsOnOrAfter) {
			continue
		}
		if f.HoldActive && !b.Payment.State.Active() {
			continue
		}
		if f.HoldExpiresBy != nil {
			if b.Payment.ExpiresAt == nil || b.Payment.ExpiresAt.After(*f.HoldExpiresBy) {
				continue
			}
		}
		out = append(out, *cloneBooking(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ApplyTransition(_ context.Context, id uuid.UUID, fn TransitionFn) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := cloneBooking(stored)
	prev := next.Version
	if err := fn(next); err != nil {
		return nil, err
	}
	if stored.Version != prev {
		return nil, ErrConflict
	}
	next.Version = prev + 1
	next.UpdatedAt = time.Now().UTC()
	s.bookings[id] = cloneBooking(next)
	s.publish(next)
	return next, nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookings[id]; !ok {
		return ErrNotFound
	}
	for tid, t := range s.threads {
		if t.BookingID == id {
			delete(s.messages, tid)
			delete(s.threads, tid)
		}
	}
	delete(s.bookings, id)
	if s.pub != nil {
		if err := s.pub.Publish(TOPIC_BOOKING_TRANSITIONS, types.JSONB{
			"booking_id": id.String(),
			"status":     "deleted",
		}); err != nil {
			log.Printf("[store] Error publishing delete for %s: %s\n", id, err.Error())
		}
	}
	return nil
}

func (s *MemoryStore) CreateThread(_ context.Context, t *models.MessageThread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookings[t.BookingID]; !ok {
		return ErrNotFound
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = types.THREAD_ACTIVE
	}
	t.CreatedAt = time.Now().UTC()
	s.threads[t.ID] = cloneThread(t)
	return nil
}

func (s *MemoryStore) Thread(_ context.Context, id uuid.UUID) (*models.MessageThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneThread(t)
	for _, m := range s.messages[id] {
		msg := *m
		out.Messages = append(out.Messages, &msg)
	}
	return out, nil
}

func (s *MemoryStore) ThreadsForBooking(_ context.Context, bookingID uuid.UUID) ([]models.MessageThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MessageThread
	for _, t := range s.threads {
		if t.BookingID != bookingID {
			continue
		}
		cp := cloneThread(t)
		for _, m := range s.messages[t.ID] {
			msg := *m
			cp.Messages = append(cp.Messages, &msg)
		}
		out = append(out, *cp)
	}
	return out, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, threadID uuid.UUID, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[threadID]; !ok {
		return ErrNotFound
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.ThreadID = threadID
	m.CreatedAt = time.Now().UTC()
	cp := *m
	s.messages[threadID] = append(s.messages[threadID], &cp)
	return nil
}

func (s *MemoryStore) ActiveThreads(_ context.Context) ([]models.MessageThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MessageThread
	for _, t := range s.threads {
		if t.Status != types.THREAD_ACTIVE {
			continue
		}
		cp := cloneThread(t)
		if b, ok := s.bookings[t.BookingID]; ok {
			cp.Booking = cloneBooking(b)
		}
		out = append(out, *cp)
	}
	return out, nil
}

func (s *MemoryStore) ExpireThread(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return ErrNotFound
	}
	t.Status = types.THREAD_EXPIRED
	return nil
}
