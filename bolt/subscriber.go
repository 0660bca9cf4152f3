package bolt

import (
	"sort"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/go-errors/errors"

	"github.com/athomewithrose/homeletter"
)

const (
	metaBucket     = "meta"
	lastUpdatedKey = "lastUpdated"
)

type subscriberService struct {
	db  *DB
	now func() time.Time
}

// NewSubscriberService returns a subscriber store backed by storm
func NewSubscriberService(db *DB) homeletter.SubscriberService {
	return &subscriberService{
		db:  db,
		now: time.Now,
	}
}

// AddSubscriber subscribes email, reactivating an existing inactive record
func (ss *subscriberService) AddSubscriber(email string) (*homeletter.SubscribeResult, error) {
	const op = "bolt.AddSubscriber"

	email = homeletter.NormalizeEmail(email)
	if !homeletter.IsValidEmail(email) {
		return nil, homeletter.Errorf(homeletter.ErrInvalid, op, homeletter.MessageInvalidEmail)
	}

	tx, err := ss.db.stormDB.Begin(true)
	if err != nil {
		return nil, errors.Errorf("failed to begin transaction: %v", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result := &homeletter.SubscribeResult{Message: homeletter.MessageSubscribed}

	var s homeletter.Subscriber
	err = tx.One("Email", email, &s)
	switch {
	case err == nil:
		if s.IsActive {
			return nil, homeletter.Errorf(homeletter.ErrConflict, op, homeletter.MessageAlreadySubscribed)
		}
		s.Reactivate(ss.now())
		result.Message = homeletter.MessageReactivated
		result.Reactivated = true
	case errors.Is(err, storm.ErrNotFound):
		s = *homeletter.NewSubscriber(email, ss.now())
	default:
		return nil, errors.Errorf("failed to find by email: %v", err)
	}

	if err := tx.Save(&s); err != nil {
		return nil, errors.Errorf("failed to save: %v", err)
	}
	if err := ss.touch(tx); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Errorf("failed to commit: %v", err)
	}

	result.Subscriber = &s
	return result, nil
}

// RemoveSubscriber deactivates the subscriber owning token
func (ss *subscriberService) RemoveSubscriber(token string) (*homeletter.UnsubscribeResult, error) {
	const op = "bolt.RemoveSubscriber"

	if err := homeletter.ValidateToken(op, token); err != nil {
		return nil, err
	}

	tx, err := ss.db.stormDB.Begin(true)
	if err != nil {
		return nil, errors.Errorf("failed to begin transaction: %v", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var s homeletter.Subscriber
	if err := tx.One("UnsubscribeToken", token, &s); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return nil, homeletter.Errorf(homeletter.ErrNotFound, op, homeletter.MessageTokenNotFound)
		}
		return nil, errors.Errorf("failed to find by token: %v", err)
	}

	if !s.IsActive {
		return &homeletter.UnsubscribeResult{
			Message:             homeletter.MessageAlreadyUnsubscribed,
			AlreadyUnsubscribed: true,
		}, nil
	}

	s.IsActive = false
	if err := tx.Save(&s); err != nil {
		return nil, errors.Errorf("failed to save: %v", err)
	}
	if err := ss.touch(tx); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Errorf("failed to commit: %v", err)
	}

	return &homeletter.UnsubscribeResult{Message: homeletter.MessageUnsubscribed}, nil
}

// ActiveSubscribers returns active subscribers in subscription order
func (ss *subscriberService) ActiveSubscribers() ([]homeletter.Subscriber, error) {
	var subscribers []homeletter.Subscriber
	if err := ss.db.stormDB.Find("IsActive", true, &subscribers); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return []homeletter.Subscriber{}, nil
		}
		return nil, errors.Errorf("failed to find active subscribers: %v", err)
	}

	sort.Slice(subscribers, func(i, j int) bool {
		return subscribers[i].ID < subscribers[j].ID
	})

	return subscribers, nil
}

// FindByEmail finds a subscriber by email
func (ss *subscriberService) FindByEmail(email string) (*homeletter.Subscriber, error) {
	var s homeletter.Subscriber
	if err := ss.db.stormDB.One("Email", homeletter.NormalizeEmail(email), &s); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Errorf("failed to find by email: %v", err)
	}

	return &s, nil
}

// FindByToken finds a subscriber by unsubscribe token
func (ss *subscriberService) FindByToken(token string) (*homeletter.Subscriber, error) {
	var s homeletter.Subscriber
	if err := ss.db.stormDB.One("UnsubscribeToken", token, &s); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Errorf("failed to find by token: %v", err)
	}

	return &s, nil
}

// LastUpdated returns the time of the last mutation, zero if the store was never written
func (ss *subscriberService) LastUpdated() (time.Time, error) {
	var t time.Time
	if err := ss.db.stormDB.Get(metaBucket, lastUpdatedKey, &t); err != nil && !errors.Is(err, storm.ErrNotFound) {
		return time.Time{}, errors.Errorf("failed to read last update: %v", err)
	}

	return t, nil
}

func (ss *subscriberService) touch(tx storm.Node) error {
	if err := tx.Set(metaBucket, lastUpdatedKey, ss.now().UTC()); err != nil {
		return errors.Errorf("failed to record last update: %v", err)
	}
	return nil
}
