package campaign

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/pkg/errors"

	"github.com/athomewithrose/homeletter"
	"github.com/athomewithrose/homeletter/pkg/markup"
)

//go:embed templates
var templates embed.FS

// Site holds the fixed branding rendered into every newsletter.
type Site struct {
	Name      string
	Author    string
	ShopURL   string
	Portrait  string
	Instagram string
	Facebook  string
	YouTube   string
	Pinterest string
}

// SiteFromConfig returns the site settings of config.
func SiteFromConfig(config *homeletter.Config) Site {
	return Site{
		Name:      config.Site.Name,
		Author:    config.Site.Author,
		ShopURL:   config.Site.ShopURL,
		Portrait:  config.Site.Portrait,
		Instagram: config.Site.Links.Instagram,
		Facebook:  config.Site.Links.Facebook,
		YouTube:   config.Site.Links.YouTube,
		Pinterest: config.Site.Links.Pinterest,
	}
}

type emailData struct {
	Newsletter     *homeletter.Newsletter
	Message        template.HTML
	Posts          []homeletter.BlogSummary
	UnsubscribeURL string
	BaseURL        string
	PortraitURL    string
	Site           Site
	Year           int
}

// Renderer turns a newsletter into HTML and plain-text email bodies.
type Renderer struct {
	site Site
	html *template.Template
	text *texttemplate.Template
}

// NewRenderer parses the embedded newsletter templates.
func NewRenderer(site Site) (*Renderer, error) {
	funcs := template.FuncMap{
		"even": func(i int) bool { return i%2 == 0 },
	}

	h, err := template.New("newsletter.html").Funcs(funcs).ParseFS(templates, "templates/newsletter.html")
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse HTML template")
	}
	t, err := texttemplate.New("newsletter.txt").ParseFS(templates, "templates/newsletter.txt")
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse text template")
	}

	return &Renderer{
		site: site,
		html: h,
		text: t,
	}, nil
}

// Render renders doc for one recipient. The output only depends on its arguments.
func (r *Renderer) Render(doc *homeletter.Newsletter, posts []homeletter.BlogSummary, unsubscribeURL, baseURL string, now time.Time) (*homeletter.RenderedEmail, error) {
	data := emailData{
		Newsletter:     doc,
		Message:        template.HTML(markup.ToHTML(doc.Message)),
		Posts:          posts,
		UnsubscribeURL: unsubscribeURL,
		BaseURL:        baseURL,
		PortraitURL:    absoluteURL(baseURL, r.site.Portrait),
		Site:           r.site,
		Year:           now.Year(),
	}

	var html, text bytes.Buffer
	if err := r.html.Execute(&html, data); err != nil {
		return nil, errors.Wrap(err, "failed to render HTML")
	}
	if err := r.text.Execute(&text, data); err != nil {
		return nil, errors.Wrap(err, "failed to render text")
	}

	return &homeletter.RenderedEmail{
		HTML: strings.TrimSpace(html.String()),
		Text: text.String(),
	}, nil
}

func absoluteURL(baseURL, path string) string {
	if strings.HasPrefix(path, "http") {
		return path
	}
	return baseURL + path
}
