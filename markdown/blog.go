package markdown

import (
	"html"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/athomewithrose/homeletter"
	"github.com/athomewithrose/homeletter/pkg/markup"
)

// Blog defaults
const (
	DefaultTitle         = "Untitled"
	DefaultFeaturedImage = "/images/blog/default.jpg"
	DefaultPageSize      = 10

	excerptLength  = 160
	wordsPerMinute = 200
)

var datePrefixRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}-`)

type blogMeta struct {
	Title         string     `yaml:"title"`
	Excerpt       string     `yaml:"excerpt"`
	FeaturedImage string     `yaml:"featuredImage"`
	PublishedAt   flexTime   `yaml:"publishedAt"`
	Tags          stringList `yaml:"tags"`
	Author        string     `yaml:"author"`
	ReadTime      int        `yaml:"readTime"`
}

type blogService struct {
	dir    string
	author string
	logger zerolog.Logger
	policy *bluemonday.Policy
}

// NewBlogService returns the read-only blog repository of dir. author is used for posts
// that do not name one.
func NewBlogService(dir, author string, logger zerolog.Logger) homeletter.BlogService {
	return &blogService{
		dir:    dir,
		author: author,
		logger: logger,
		policy: bluemonday.StrictPolicy(),
	}
}

// FindAll returns one page of posts, newest first
func (bs *blogService) FindAll(filter homeletter.BlogFilter) (*homeletter.BlogPage, error) {
	posts, err := bs.all()
	if err != nil {
		return nil, err
	}

	if filter.Category != "" {
		posts = filterPosts(posts, func(p homeletter.BlogPost) bool {
			for _, tag := range p.Tags {
				if strings.EqualFold(tag, filter.Category) {
					return true
				}
			}
			return false
		})
	}

	if filter.Search != "" {
		q := strings.ToLower(filter.Search)
		posts = filterPosts(posts, func(p homeletter.BlogPost) bool {
			if strings.Contains(strings.ToLower(p.Title), q) || strings.Contains(strings.ToLower(p.Excerpt), q) {
				return true
			}
			for _, tag := range p.Tags {
				if strings.Contains(strings.ToLower(tag), q) {
					return true
				}
			}
			return false
		})
	}

	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}

	total := len(posts)
	totalPages := int(math.Ceil(float64(total) / float64(limit)))

	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &homeletter.BlogPage{
		Posts:       posts[start:end],
		TotalPosts:  total,
		TotalPages:  totalPages,
		CurrentPage: page,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}, nil
}

// FindBySlug returns the post with slug, or nil
func (bs *blogService) FindBySlug(slug string) (*homeletter.BlogPost, error) {
	posts, err := bs.all()
	if err != nil {
		return nil, err
	}

	for i := range posts {
		if posts[i].Slug == slug {
			return &posts[i], nil
		}
	}

	return nil, nil
}

// Related returns up to limit posts sharing tags with post, most shared tags first, then
// the most recent other posts.
func (bs *blogService) Related(post *homeletter.BlogPost, limit int) ([]homeletter.BlogPost, error) {
	if post == nil || limit <= 0 {
		return []homeletter.BlogPost{}, nil
	}

	posts, err := bs.all()
	if err != nil {
		return nil, err
	}

	tags := make(map[string]bool, len(post.Tags))
	for _, t := range post.Tags {
		tags[t] = true
	}

	type match struct {
		post  homeletter.BlogPost
		count int
	}
	var matches []match
	var others []homeletter.BlogPost
	for _, p := range posts {
		if p.ID == post.ID {
			continue
		}
		count := 0
		for _, t := range p.Tags {
			if tags[t] {
				count++
			}
		}
		if count > 0 {
			matches = append(matches, match{p, count})
		} else {
			others = append(others, p)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].count > matches[j].count
	})

	related := make([]homeletter.BlogPost, 0, limit)
	for _, m := range matches {
		if len(related) == limit {
			return related, nil
		}
		related = append(related, m.post)
	}
	for _, p := range others {
		if len(related) == limit {
			break
		}
		related = append(related, p)
	}

	return related, nil
}

func (bs *blogService) all() ([]homeletter.BlogPost, error) {
	files, err := markdownFiles(bs.dir)
	if err != nil {
		return nil, err
	}

	posts := make([]homeletter.BlogPost, 0, len(files))
	for _, f := range files {
		p, err := bs.load(filepath.Join(bs.dir, f.Name()))
		if err != nil {
			bs.logger.Warn().Err(err).Str("file", f.Name()).Msg("skipping blog post")
			continue
		}
		posts = append(posts, *p)
	}

	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		return a.Slug < b.Slug
	})

	return posts, nil
}

func (bs *blogService) load(path string) (*homeletter.BlogPost, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "os.Stat")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "os.ReadFile")
	}

	doc, err := splitFrontmatter(content)
	if err != nil {
		return nil, err
	}
	var meta blogMeta
	if err := doc.decode(&meta); err != nil {
		return nil, err
	}

	body := string(doc.body)
	slug := datePrefixRe.ReplaceAllString(strings.TrimSuffix(filepath.Base(path), ext), "")

	post := &homeletter.BlogPost{
		ID:            slug,
		Slug:          slug,
		Title:         orDefault(meta.Title, DefaultTitle),
		Excerpt:       meta.Excerpt,
		Content:       body,
		FeaturedImage: orDefault(meta.FeaturedImage, DefaultFeaturedImage),
		PublishedAt:   info.ModTime().UTC(),
		Tags:          []string(meta.Tags),
		Author:        orDefault(meta.Author, bs.author),
		ReadTime:      meta.ReadTime,
	}
	if meta.PublishedAt.t != nil {
		post.PublishedAt = *meta.PublishedAt.t
	}
	if post.Tags == nil {
		post.Tags = []string{}
	}
	if post.Excerpt == "" {
		post.Excerpt = bs.excerpt(body)
	}
	if post.ReadTime <= 0 {
		post.ReadTime = readTime(body)
	}

	return post, nil
}

// excerpt returns the first excerptLength characters of the text of md.
func (bs *blogService) excerpt(md string) string {
	text := html.UnescapeString(bs.policy.Sanitize(markup.Strip(md)))
	text = strings.TrimSpace(text)

	if utf8.RuneCountInString(text) <= excerptLength {
		return text
	}

	runes := []rune(text)
	return strings.TrimSpace(string(runes[:excerptLength])) + "..."
}

func readTime(md string) int {
	words := len(strings.Fields(md))
	if words == 0 {
		return 1
	}
	return int(math.Ceil(float64(words) / wordsPerMinute))
}

func filterPosts(posts []homeletter.BlogPost, keep func(homeletter.BlogPost) bool) []homeletter.BlogPost {
	filtered := posts[:0]
	for _, p := range posts {
		if keep(p) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}
