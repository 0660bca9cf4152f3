package homeletter

import "time"

// BlogService is the read-only content repository of blog posts
type BlogService interface {
	FindAll(filter BlogFilter) (*BlogPage, error)
	FindBySlug(slug string) (*BlogPost, error)
	Related(post *BlogPost, limit int) ([]BlogPost, error)
}

// BlogPost is a published article
type BlogPost struct {
	ID            string    `json:"id"`
	Slug          string    `json:"slug"`
	Title         string    `json:"title"`
	Excerpt       string    `json:"excerpt"`
	Content       string    `json:"content"`
	FeaturedImage string    `json:"featuredImage"`
	PublishedAt   time.Time `json:"publishedAt"`
	Tags          []string  `json:"tags"`
	Author        string    `json:"author"`
	ReadTime      int       `json:"readTime"`
}

// BlogFilter narrows and paginates FindAll
type BlogFilter struct {
	Category string
	Search   string
	Page     int
	Limit    int
}

// BlogPage is one page of posts
type BlogPage struct {
	Posts       []BlogPost `json:"posts"`
	TotalPosts  int        `json:"totalPosts"`
	TotalPages  int        `json:"totalPages"`
	CurrentPage int        `json:"currentPage"`
	HasNextPage bool       `json:"hasNextPage"`
	HasPrevPage bool       `json:"hasPrevPage"`
}

// BlogSummary is a blog post prepared for a newsletter, with absolute URLs.
type BlogSummary struct {
	Title    string `json:"title"`
	Excerpt  string `json:"excerpt"`
	ImageURL string `json:"imageUrl"`
	LinkURL  string `json:"linkUrl"`
}
