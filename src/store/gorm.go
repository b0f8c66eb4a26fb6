package store

import (
	"context"
	"errors"
	"fmt"
	"log"

	"parkbook/src/models"
	"parkbook/src/types"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct {
	db  *gorm.DB
	pub Publisher
}

func NewGormStore(db *gorm.DB, pub Publisher) *GormStore {
	return &GormStore{db: db, pub: pub}
}

func (s *GormStore) publish(b *models.Booking) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(TOPIC_BOOKING_TRANSITIONS, transitionEvent(b)); err != nil {
		log.Printf("[store] Error publishing transition for %s: %s\n", b.ID, err.Error())
	}
}

func (s *GormStore) Create(ctx context.Context, b *models.Booking) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).Create(b).Error
	})
	if err != nil {
		return err
	}
	s.publish(b)
	return nil
}

func (s *GormStore) Get(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	err := s.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ?", id).
		First(&b).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *GormStore) List(ctx context.Context, f Filter) ([]models.Booking, error) {
	q := s.db.WithContext(ctx).Model(&models.Booking{})
	if f.RenterID != nil {
		q = q.Where("renter_id = ?", *f.RenterID)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.EndsOnOrAfter != nil {
		q = q.Where("ends_at >= ?", *f.EndsOnOrAfter)
	}
	if f.HoldActive {
		q = q.Where("payment_state IN (?)", []types.HoldState{types.HOLD_AUTHORIZED, types.HOLD_EXTENDED})
	}
	if f.HoldExpiresBy != nil {
		q = q.Where("payment_expires_at <= ?", *f.HoldExpiresBy)
	}
	var bookings []models.Booking
	if err := q.Order("created_at").Find(&bookings).Error; err != nil {
		return nil, err
	}
	return bookings, nil
}

func (s *GormStore) ApplyTransition(ctx context.Context, id uuid.UUID, fn TransitionFn) (*models.Booking, error) {
	var out models.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b models.Booking
		if err := tx.Where("id = ?", id).First(&b).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		prev := b.Version
		if err := fn(&b); err != nil {
			return err
		}
		b.Version = prev + 1
		res := tx.Model(&models.Booking{}).
			Where("id = ? AND version = ?", id, prev).
			Omit("id", "created_at").
			Omit(clause.Associations).
			Select("*").
			Updates(&b)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(&out)
	return &out, nil
}

func (s *GormStore) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b models.Booking
		if err := tx.Where("id = ?", id).First(&b).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		var threadIds []uuid.UUID
		if err := tx.
			Model(&models.MessageThread{}).
			Where("booking_id = ?", id).
			Pluck("id", &threadIds).
			Error; err != nil {
			return fmt.Errorf("collecting threads: %w", err)
		}
		if len(threadIds) > 0 {
			if err := tx.
				Unscoped().
				Where("thread_id IN (?)", threadIds).
				Delete(&models.Message{}).
				Error; err != nil {
				return fmt.Errorf("deleting messages: %w", err)
			}
		}
		if err := tx.
			Unscoped().
			Where("booking_id = ?", id).
			Delete(&models.MessageThread{}).
			Error; err != nil {
			return fmt.Errorf("deleting threads: %w", err)
		}
		if err := tx.
			Unscoped().
			Where("id = ?", id).
			Delete(&models.Booking{}).
			Error; err != nil {
			return fmt.Errorf("deleting booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.pub != nil {
		if perr := s.pub.Publish(TOPIC_BOOKING_TRANSITIONS, types.JSONB{
			"booking_id": id.String(),
			"status":     "deleted",
		}); perr != nil {
			log.Printf("[store] Error publishing delete for %s: %s\n", id, perr.Error())
		}
	}
	return nil
}

func (s *GormStore) CreateThread(ctx context.Context, t *models.MessageThread) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(t).Error
}

func (s *GormStore) Thread(ctx context.Context, id uuid.UUID) (*models.MessageThread, error) {
	var t models.MessageThread
	err := s.db.WithContext(ctx).
		Model(&models.MessageThread{}).
		Where("id = ?", id).
		Preload("Messages").
		First(&t).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *GormStore) ThreadsForBooking(ctx context.Context, bookingID uuid.UUID) ([]models.MessageThread, error) {
	var threads []models.MessageThread
	err := s.db.WithContext(ctx).
		Model(&models.MessageThread{}).
		Where("booking_id = ?", bookingID).
		Preload("Messages").
		Find(&threads).
		Error
	if err != nil {
		return nil, err
	}
	return threads, nil
}

func (s *GormStore) AppendMessage(ctx context.Context, threadID uuid.UUID, m *models.Message) error {
	m.ThreadID = threadID
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *GormStore) ActiveThreads(ctx context.Context) ([]models.MessageThread, error) {
	var threads []models.MessageThread
	err := s.db.WithContext(ctx).
		Model(&models.MessageThread{}).
		Where("status = ?", types.THREAD_ACTIVE).
		Preload("Booking").
		Find(&threads).
		Error
	if err != nil {
		return nil, err
	}
	return threads, nil
}

func (s *GormStore) ExpireThread(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).
		Model(&models.MessageThread{}).
		Where("id = ? AND status = ?", id, types.THREAD_ACTIVE).
		Update("status", types.THREAD_EXPIRED)
	if res.Error != nil {
		return res.Error
	}
	// zero rows means it was already expired, which is fine
	return nil
}
