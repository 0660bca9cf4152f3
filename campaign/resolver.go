package campaign

import (
	"github.com/rs/zerolog"

	"github.com/athomewithrose/homeletter"
)

// Resolver expands blog slugs into newsletter-ready summaries.
type Resolver struct {
	blog    homeletter.BlogService
	baseURL string
	logger  zerolog.Logger
}

// NewResolver returns a resolver linking posts under baseURL.
func NewResolver(blog homeletter.BlogService, baseURL string, logger zerolog.Logger) *Resolver {
	return &Resolver{
		blog:    blog,
		baseURL: baseURL,
		logger:  logger,
	}
}

// Resolve looks up each slug in order. Missing posts are logged and left out.
func (r *Resolver) Resolve(slugs []string) []homeletter.BlogSummary {
	summaries := make([]homeletter.BlogSummary, 0, len(slugs))

	for _, slug := range slugs {
		post, err := r.blog.FindBySlug(slug)
		if err != nil {
			r.logger.Warn().Err(err).Str("slug", slug).Msg("failed to look up blog post")
			continue
		}
		if post == nil {
			r.logger.Warn().Str("slug", slug).Msg("blog post not found")
			continue
		}

		summaries = append(summaries, homeletter.BlogSummary{
			Title:    post.Title,
			Excerpt:  post.Excerpt,
			ImageURL: absoluteURL(r.baseURL, post.FeaturedImage),
			LinkURL:  r.baseURL + "/blog/" + post.Slug,
		})
	}

	return summaries
}
