package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/athomewithrose/homeletter"
)

const (
	subscriberColumns = "id, email, unsubscribe_token, subscribed_at, is_active"
	lastUpdatedKey    = "lastUpdated"
)

type subscriberService struct {
	db  *DB
	now func() time.Time
}

// NewSubscriberService returns a subscriber store backed by SQLite
func NewSubscriberService(db *DB) homeletter.SubscriberService {
	return &subscriberService{
		db:  db,
		now: time.Now,
	}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscriber(row scanner) (*homeletter.Subscriber, error) {
	var (
		s            homeletter.Subscriber
		subscribedAt string
	)
	if err := row.Scan(&s.ID, &s.Email, &s.UnsubscribeToken, &subscribedAt, &s.IsActive); err != nil {
		return nil, err
	}

	t, err := time.Parse(time.RFC3339Nano, subscribedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid subscribed_at %q: %w", subscribedAt, err)
	}
	s.SubscribedAt = t

	return &s, nil
}

// AddSubscriber subscribes email, reactivating an existing inactive record
func (ss *subscriberService) AddSubscriber(email string) (*homeletter.SubscribeResult, error) {
	const op = "sqlite.AddSubscriber"

	email = homeletter.NormalizeEmail(email)
	if !homeletter.IsValidEmail(email) {
		return nil, homeletter.Errorf(homeletter.ErrInvalid, op, homeletter.MessageInvalidEmail)
	}

	tx, err := ss.db.beginTx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := ss.now()
	result := &homeletter.SubscribeResult{Message: homeletter.MessageSubscribed}

	s, err := scanSubscriber(tx.QueryRow("SELECT "+subscriberColumns+" FROM subscribers WHERE email = ?", email))
	switch {
	case err == nil:
		if s.IsActive {
			return nil, homeletter.Errorf(homeletter.ErrConflict, op, homeletter.MessageAlreadySubscribed)
		}
		s.Reactivate(now)
		if _, err := tx.Exec("UPDATE subscribers SET unsubscribe_token = ?, subscribed_at = ?, is_active = 1 WHERE id = ?",
			s.UnsubscribeToken, s.SubscribedAt.Format(time.RFC3339Nano), s.ID); err != nil {
			return nil, fmt.Errorf("failed to update: %w", err)
		}
		result.Message = homeletter.MessageReactivated
		result.Reactivated = true
	case errors.Is(err, sql.ErrNoRows):
		s = homeletter.NewSubscriber(email, now)
		res, err := tx.Exec("INSERT INTO subscribers (email, unsubscribe_token, subscribed_at, is_active) VALUES (?, ?, ?, 1)",
			s.Email, s.UnsubscribeToken, s.SubscribedAt.Format(time.RFC3339Nano))
		if err != nil {
			return nil, fmt.Errorf("failed to insert: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read id: %w", err)
		}
		s.ID = int(id)
	default:
		return nil, fmt.Errorf("failed to find by email: %w", err)
	}

	if err := touch(tx, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	result.Subscriber = s
	return result, nil
}

// RemoveSubscriber deactivates the subscriber owning token
func (ss *subscriberService) RemoveSubscriber(token string) (*homeletter.UnsubscribeResult, error) {
	const op = "sqlite.RemoveSubscriber"

	if err := homeletter.ValidateToken(op, token); err != nil {
		return nil, err
	}

	tx, err := ss.db.beginTx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	s, err := scanSubscriber(tx.QueryRow("SELECT "+subscriberColumns+" FROM subscribers WHERE unsubscribe_token = ?", token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, homeletter.Errorf(homeletter.ErrNotFound, op, homeletter.MessageTokenNotFound)
		}
		return nil, fmt.Errorf("failed to find by token: %w", err)
	}

	if !s.IsActive {
		return &homeletter.UnsubscribeResult{
			Message:             homeletter.MessageAlreadyUnsubscribed,
			AlreadyUnsubscribed: true,
		}, nil
	}

	if _, err := tx.Exec("UPDATE subscribers SET is_active = 0 WHERE id = ?", s.ID); err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	if err := touch(tx, ss.now()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return &homeletter.UnsubscribeResult{Message: homeletter.MessageUnsubscribed}, nil
}

// ActiveSubscribers returns active subscribers in subscription order
func (ss *subscriberService) ActiveSubscribers() ([]homeletter.Subscriber, error) {
	rows, err := ss.db.sqlDB.Query("SELECT " + subscriberColumns + " FROM subscribers WHERE is_active = 1 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to find active subscribers: %w", err)
	}
	defer rows.Close()

	subscribers := []homeletter.Subscriber{}
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		subscribers = append(subscribers, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return subscribers, nil
}

// FindByEmail finds a subscriber by email
func (ss *subscriberService) FindByEmail(email string) (*homeletter.Subscriber, error) {
	s, err := scanSubscriber(ss.db.sqlDB.QueryRow("SELECT "+subscriberColumns+" FROM subscribers WHERE email = ?",
		homeletter.NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find by email %s: %w", email, err)
	}
	return s, nil
}

// FindByToken finds a subscriber by unsubscribe token
func (ss *subscriberService) FindByToken(token string) (*homeletter.Subscriber, error) {
	s, err := scanSubscriber(ss.db.sqlDB.QueryRow("SELECT "+subscriberColumns+" FROM subscribers WHERE unsubscribe_token = ?", token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find by token: %w", err)
	}
	return s, nil
}

// LastUpdated returns the time of the last mutation, zero if the store was never written
func (ss *subscriberService) LastUpdated() (time.Time, error) {
	var value string
	err := ss.db.sqlDB.QueryRow("SELECT value FROM meta WHERE key = ?", lastUpdatedKey).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to read last update: %w", err)
	}
	return time.Parse(time.RFC3339Nano, value)
}

func touch(tx *sql.Tx, now time.Time) error {
	_, err := tx.Exec("INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		lastUpdatedKey, now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record last update: %w", err)
	}
	return nil
}
