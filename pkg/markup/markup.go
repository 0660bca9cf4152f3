// Package markup converts the small markdown subset used by newsletters and blog
// posts: paragraphs, #/##/### headings, **bold**, *italic* and ![alt](src) images.
// Anything else is emitted literally.
package markup

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

var (
	blankLineRe = regexp.MustCompile(`\n[ \t]*\n`)
	imageRe     = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)\)`)
	boldRe      = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe    = regexp.MustCompile(`\*(.+?)\*`)

	headerRe     = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	linkRe       = regexp.MustCompile(`\[(.*?)\]\(.*?\)`)
	codeBlockRe  = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe = regexp.MustCompile("`(.*?)`")
)

// ToHTML converts md to an HTML fragment. Text is HTML-escaped before any tag is
// produced, so the output only contains tags generated here.
func ToHTML(md string) string {
	md = strings.ReplaceAll(md, "\r\n", "\n")

	var b strings.Builder
	for _, block := range blankLineRe.Split(md, -1) {
		var lines []string
		flush := func() {
			if len(lines) > 0 {
				b.WriteString("<p>" + strings.Join(lines, "<br>") + "</p>")
				lines = nil
			}
		}

		for _, line := range strings.Split(block, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if level, text, ok := heading(line); ok {
				flush()
				fmt.Fprintf(&b, "<h%d>%s</h%d>", level, inline(text), level)
				continue
			}
			lines = append(lines, inline(line))
		}
		flush()
	}

	return b.String()
}

func heading(line string) (int, string, bool) {
	for level := 3; level >= 1; level-- {
		prefix := strings.Repeat("#", level) + " "
		if strings.HasPrefix(line, prefix) {
			return level, strings.TrimSpace(line[len(prefix):]), true
		}
	}
	return 0, "", false
}

// inline applies emphasis to the text around images; image attributes are left as written.
func inline(s string) string {
	s = html.EscapeString(s)

	var b strings.Builder
	last := 0
	for _, m := range imageRe.FindAllStringSubmatchIndex(s, -1) {
		b.WriteString(emphasis(s[last:m[0]]))
		fmt.Fprintf(&b, `<img src="%s" alt="%s">`, s[m[4]:m[5]], s[m[2]:m[3]])
		last = m[1]
	}
	b.WriteString(emphasis(s[last:]))

	return b.String()
}

func emphasis(s string) string {
	s = boldRe.ReplaceAllString(s, "<strong>$1</strong>")
	return italicRe.ReplaceAllString(s, "<em>$1</em>")
}

// Strip removes markdown syntax, leaving readable text.
func Strip(md string) string {
	s := codeBlockRe.ReplaceAllString(md, "")
	s = headerRe.ReplaceAllString(s, "")
	s = boldRe.ReplaceAllString(s, "$1")
	s = italicRe.ReplaceAllString(s, "$1")
	s = linkRe.ReplaceAllString(s, "$1")
	s = inlineCodeRe.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}
