package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"inbox-tollbooth-go/internal/models"
)

var (
	// ErrRecordNotFound indicates no toll record exists for the given key
	ErrRecordNotFound = errors.New("toll record not found")
	// ErrDuplicateRecord indicates a toll record already exists for the Gmail message ID
	ErrDuplicateRecord = errors.New("toll record already exists for message")
	// ErrDuplicateEvent indicates a webhook event ID has already been consumed
	ErrDuplicateEvent = errors.New("webhook event already processed")
)

// Store persists toll records and consumed webhook events. It deliberately
// exposes only point lookups, create, and the single legal mutation
// (MarkPaid) rather than a general query surface.
type Store struct {
	db *gorm.DB
}

// New creates a new Store
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateRecord inserts a new toll record. The unique index on the Gmail
// message ID is the backstop for two racing writers: the loser gets
// ErrDuplicateRecord and must treat the message as already processed.
func (s *Store) CreateRecord(record *models.TollRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	result := s.db.Create(record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateRecord
		}
		return fmt.Errorf("failed to create toll record: %w", result.Error)
	}
	return nil
}

// FindByMessageID looks up a toll record by Gmail message ID
func (s *Store) FindByMessageID(gmailMessageID string) (*models.TollRecord, error) {
	var record models.TollRecord
	result := s.db.Where("gmail_message_id = ?", gmailMessageID).First(&record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("database error looking up toll record: %w", result.Error)
	}
	return &record, nil
}

// FindByID looks up a toll record by its internal ID
func (s *Store) FindByID(id string) (*models.TollRecord, error) {
	var record models.TollRecord
	result := s.db.Where("id = ?", id).First(&record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("database error looking up toll record: %w", result.Error)
	}
	return &record, nil
}

// IsProcessed reports whether a toll record exists for the Gmail message ID
func (s *Store) IsProcessed(gmailMessageID string) (bool, error) {
	_, err := s.FindByMessageID(gmailMessageID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

// MarkPaid flips TollPaid from false to true on an existing record. It is the
// only mutation the store allows on a toll record.
func (s *Store) MarkPaid(id string) error {
	result := s.db.Model(&models.TollRecord{}).Where("id = ?", id).Update("toll_paid", true)
	if result.Error != nil {
		return fmt.Errorf("failed to mark toll record as paid: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ListRecords returns toll records ordered newest first, with pagination
func (s *Store) ListRecords(offset, limit int) ([]models.TollRecord, int64, error) {
	var total int64
	if err := s.db.Model(&models.TollRecord{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count toll records: %w", err)
	}

	var records []models.TollRecord
	result := s.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&records)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to list toll records: %w", result.Error)
	}
	return records, total, nil
}

// RecordEvent remembers a Stripe webhook event ID. A redelivered event hits
// the unique index and returns ErrDuplicateEvent, which callers use to skip
// re-applying the credit.
func (s *Store) RecordEvent(stripeEventID, eventType string) error {
	event := models.WebhookEvent{
		StripeEventID: stripeEventID,
		EventType:     eventType,
		CreatedAt:     time.Now(),
	}
	result := s.db.Create(&event)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("failed to record webhook event: %w", result.Error)
	}
	return nil
}

// DeleteEvent forgets a consumed webhook event ID. Callers use it to release
// the duplicate guard when the work the event guards failed after the ID was
// recorded, so a redelivery retries instead of being skipped.
func (s *Store) DeleteEvent(stripeEventID string) error {
	result := s.db.Where("stripe_event_id = ?", stripeEventID).Delete(&models.WebhookEvent{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete webhook event: %w", result.Error)
	}
	return nil
}
