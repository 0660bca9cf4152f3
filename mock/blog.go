package mock

import (
	"github.com/stretchr/testify/mock"

	"github.com/athomewithrose/homeletter"
)

// BlogService is a mock of homeletter.BlogService
type BlogService struct {
	mock.Mock
}

// FindAll mocks FindAll
func (m *BlogService) FindAll(filter homeletter.BlogFilter) (*homeletter.BlogPage, error) {
	args := m.Called(filter)
	page, _ := args.Get(0).(*homeletter.BlogPage)
	return page, args.Error(1)
}

// FindBySlug mocks FindBySlug
func (m *BlogService) FindBySlug(slug string) (*homeletter.BlogPost, error) {
	args := m.Called(slug)
	post, _ := args.Get(0).(*homeletter.BlogPost)
	return post, args.Error(1)
}

// Related mocks Related
func (m *BlogService) Related(post *homeletter.BlogPost, limit int) ([]homeletter.BlogPost, error) {
	args := m.Called(post, limit)
	posts, _ := args.Get(0).([]homeletter.BlogPost)
	return posts, args.Error(1)
}
