package jsonfile

import (
	"time"

	"github.com/athomewithrose/homeletter"
)

type subscriberService struct {
	db  *DB
	now func() time.Time
}

// NewSubscriberService returns a subscriber store backed by a JSON file
func NewSubscriberService(db *DB) homeletter.SubscriberService {
	return &subscriberService{
		db:  db,
		now: time.Now,
	}
}

// AddSubscriber subscribes email, reactivating an existing inactive record
func (ss *subscriberService) AddSubscriber(email string) (*homeletter.SubscribeResult, error) {
	const op = "jsonfile.AddSubscriber"

	email = homeletter.NormalizeEmail(email)
	if !homeletter.IsValidEmail(email) {
		return nil, homeletter.Errorf(homeletter.ErrInvalid, op, homeletter.MessageInvalidEmail)
	}

	var result *homeletter.SubscribeResult
	err := ss.db.update(ss.now(), func(d *database) (bool, error) {
		if i := indexByEmail(d, email); i >= 0 {
			s := &d.Subscribers[i]
			if s.IsActive {
				return false, homeletter.Errorf(homeletter.ErrConflict, op, homeletter.MessageAlreadySubscribed)
			}
			s.Reactivate(ss.now())
			copied := *s
			result = &homeletter.SubscribeResult{
				Subscriber:  &copied,
				Message:     homeletter.MessageReactivated,
				Reactivated: true,
			}
			return true, nil
		}

		s := homeletter.NewSubscriber(email, ss.now())
		s.ID = nextID(d)
		d.Subscribers = append(d.Subscribers, *s)
		result = &homeletter.SubscribeResult{
			Subscriber: s,
			Message:    homeletter.MessageSubscribed,
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// RemoveSubscriber deactivates the subscriber owning token
func (ss *subscriberService) RemoveSubscriber(token string) (*homeletter.UnsubscribeResult, error) {
	const op = "jsonfile.RemoveSubscriber"

	if err := homeletter.ValidateToken(op, token); err != nil {
		return nil, err
	}

	var result *homeletter.UnsubscribeResult
	err := ss.db.update(ss.now(), func(d *database) (bool, error) {
		i := indexByToken(d, token)
		if i < 0 {
			return false, homeletter.Errorf(homeletter.ErrNotFound, op, homeletter.MessageTokenNotFound)
		}

		s := &d.Subscribers[i]
		if !s.IsActive {
			result = &homeletter.UnsubscribeResult{
				Message:             homeletter.MessageAlreadyUnsubscribed,
				AlreadyUnsubscribed: true,
			}
			return false, nil
		}

		s.IsActive = false
		result = &homeletter.UnsubscribeResult{Message: homeletter.MessageUnsubscribed}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ActiveSubscribers returns active subscribers in file order
func (ss *subscriberService) ActiveSubscribers() ([]homeletter.Subscriber, error) {
	active := []homeletter.Subscriber{}
	err := ss.db.view(func(d *database) error {
		for _, s := range d.Subscribers {
			if s.IsActive {
				active = append(active, s)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return active, nil
}

// FindByEmail finds a subscriber by email
func (ss *subscriberService) FindByEmail(email string) (*homeletter.Subscriber, error) {
	email = homeletter.NormalizeEmail(email)

	var found *homeletter.Subscriber
	err := ss.db.view(func(d *database) error {
		if i := indexByEmail(d, email); i >= 0 {
			s := d.Subscribers[i]
			found = &s
		}
		return nil
	})

	return found, err
}

// FindByToken finds a subscriber by unsubscribe token
func (ss *subscriberService) FindByToken(token string) (*homeletter.Subscriber, error) {
	var found *homeletter.Subscriber
	err := ss.db.view(func(d *database) error {
		if i := indexByToken(d, token); i >= 0 {
			s := d.Subscribers[i]
			found = &s
		}
		return nil
	})

	return found, err
}

func indexByEmail(d *database, email string) int {
	for i, s := range d.Subscribers {
		if homeletter.NormalizeEmail(s.Email) == email {
			return i
		}
	}
	return -1
}

func indexByToken(d *database, token string) int {
	for i, s := range d.Subscribers {
		if s.UnsubscribeToken == token {
			return i
		}
	}
	return -1
}

func nextID(d *database) int {
	max := 0
	for _, s := range d.Subscribers {
		if s.ID > max {
			max = s.ID
		}
	}
	return max + 1
}
