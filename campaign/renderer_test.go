package campaign

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athomewithrose/homeletter"
)

const testBaseURL = "https://ashleyrose.com"

var testSite = Site{
	Name:      "At home with Rose",
	Author:    "Ashley Rose",
	ShopURL:   "https://www.shopltk.com/explore/Ashley_Rose/",
	Portrait:  "/images/ashley-portrait.jpg",
	Instagram: "https://instagram.com/ashleyrose",
	Facebook:  "https://facebook.com/ashleyrose",
	YouTube:   "https://youtube.com/@ashleyrose",
	Pinterest: "https://pinterest.com/ashleyrose",
}

func testNewsletter() *homeletter.Newsletter {
	return &homeletter.Newsletter{
		ID:          "2025-06-01-update",
		Subject:     "June at home",
		PreviewText: "Kitchen reveal inside",
		Salutation:  "Hi friends!",
		Message:     "## Kitchen\n\nWe **finally** finished it.\nMore soon.",
		SignOff:     "Talk soon,",
		Signature:   "Ashley",
		Status:      homeletter.StatusDraft,
	}
}

func testPosts() []homeletter.BlogSummary {
	return []homeletter.BlogSummary{
		{Title: "Post A", Excerpt: "About A", ImageURL: testBaseURL + "/images/a.jpg", LinkURL: testBaseURL + "/blog/post-a"},
		{Title: "Post B", Excerpt: "About B", ImageURL: "https://cdn.example.com/b.jpg", LinkURL: testBaseURL + "/blog/post-b"},
	}
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()

	r, err := NewRenderer(testSite)
	require.NoError(t, err)
	return r
}

func TestRenderIsDeterministic(t *testing.T) {
	r := newTestRenderer(t)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	url := homeletter.UnsubscribeURL(testBaseURL, "tok1")

	first, err := r.Render(testNewsletter(), testPosts(), url, testBaseURL, now)
	require.NoError(t, err)
	second, err := r.Render(testNewsletter(), testPosts(), url, testBaseURL, now)
	require.NoError(t, err)

	assert.Equal(t, first.HTML, second.HTML)
	assert.Equal(t, first.Text, second.Text)
}

func TestRenderHTML(t *testing.T) {
	r := newTestRenderer(t)
	now := time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC)

	email, err := r.Render(testNewsletter(), testPosts(), homeletter.UnsubscribeURL(testBaseURL, "tok1"), testBaseURL, now)
	require.NoError(t, err)
	html := email.HTML

	assert.True(t, strings.HasPrefix(html, "<!DOCTYPE html>"))
	assert.Contains(t, html, "<title>June at home</title>")
	assert.Contains(t, html, "Kitchen reveal inside")
	assert.Contains(t, html, "<h2>Kitchen</h2><p>We <strong>finally</strong> finished it.<br>More soon.</p>")
	assert.Contains(t, html, "Catch up on the blog!")
	assert.Contains(t, html, `<a href="https://ashleyrose.com/blog/post-a" target="_blank"><img src="https://ashleyrose.com/images/a.jpg" alt="Post A"`)
	assert.Contains(t, html, `src="https://cdn.example.com/b.jpg"`)
	assert.Equal(t, 1, strings.Count(html, "text-align: right;\">"))
	assert.Contains(t, html, `href="https://www.shopltk.com/explore/Ashley_Rose/"`)
	assert.Contains(t, html, `src="https://ashleyrose.com/images/ashley-portrait.jpg"`)
	assert.Contains(t, html, `href="https://ashleyrose.com/newsletter/unsubscribe?token=tok1"`)
	assert.Contains(t, html, `href="https://pinterest.com/ashleyrose"`)
	assert.Contains(t, html, "&copy; 2031 At home with Rose. All rights reserved.")

	a := strings.Index(html, "Post A")
	b := strings.Index(html, "Post B")
	assert.True(t, a < b)
}

func TestRenderWithoutPosts(t *testing.T) {
	r := newTestRenderer(t)

	email, err := r.Render(testNewsletter(), nil, homeletter.UnsubscribeURL(testBaseURL, "tok1"), testBaseURL, time.Now())
	require.NoError(t, err)

	assert.NotContains(t, email.HTML, "Catch up on the blog!")
	assert.NotContains(t, email.HTML, "From The Blog")
	assert.NotContains(t, email.Text, "CATCH UP ON THE BLOG")
	assert.Contains(t, email.HTML, "Shop My Favorites")
}

func TestRenderEscapesContent(t *testing.T) {
	r := newTestRenderer(t)

	doc := testNewsletter()
	doc.Subject = "<script>alert(1)</script>"
	doc.Salutation = "Hi <b>friends</b> & family"
	doc.Message = `<img src=x onerror="alert(1)"> hello`
	posts := []homeletter.BlogSummary{{
		Title:    `"><script>x</script>`,
		ImageURL: "javascript:alert(1)",
		LinkURL:  testBaseURL + "/blog/x",
	}}

	email, err := r.Render(doc, posts, homeletter.UnsubscribeURL(testBaseURL, "tok1"), testBaseURL, time.Now())
	require.NoError(t, err)

	assert.NotContains(t, email.HTML, "<script>")
	assert.NotContains(t, email.HTML, "<b>friends</b>")
	assert.NotContains(t, email.HTML, "<img src=x")
	assert.NotContains(t, email.HTML, "javascript:")
	assert.Contains(t, email.HTML, "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.Contains(t, email.HTML, "Hi &lt;b&gt;friends&lt;/b&gt; &amp; family")

	// the plain text body is not HTML and keeps the content as written
	assert.Contains(t, email.Text, "Hi <b>friends</b> & family")
}

func TestRenderText(t *testing.T) {
	r := newTestRenderer(t)
	now := time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC)

	email, err := r.Render(testNewsletter(), testPosts(), homeletter.UnsubscribeURL(testBaseURL, "tok1"), testBaseURL, now)
	require.NoError(t, err)
	text := email.Text

	assert.True(t, strings.HasPrefix(text, "Hi friends!\n\n## Kitchen\n\nWe **finally** finished it.\nMore soon.\n\nTalk soon,\nAshley\n\n---\n\n"))
	assert.Contains(t, text, "CATCH UP ON THE BLOG\n\nPost A\nAbout A\nRead more: https://ashleyrose.com/blog/post-a\n\nPost B\nAbout B\nRead more: https://ashleyrose.com/blog/post-b\n\n---\n\nSHOP MY FAVORITES\n")
	assert.Contains(t, text, "Visit my website: https://ashleyrose.com\n")
	assert.True(t, strings.HasSuffix(text, "To unsubscribe, visit: https://ashleyrose.com/newsletter/unsubscribe?token=tok1\n© 2031 At home with Rose. All rights reserved.\n"))

	order := []string{"Hi friends!", "We **finally**", "Talk soon,", "CATCH UP ON THE BLOG", "SHOP MY FAVORITES", "FIND ME ON THE WEB", "Follow me on social media:", "To unsubscribe"}
	last := -1
	for _, section := range order {
		i := strings.Index(text, section)
		require.True(t, i > last, section)
		last = i
	}
}
