// Package markdown reads newsletter issues and blog posts from markdown files with a
// YAML frontmatter block.
package markdown

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const ext = ".md"

var delimiter = []byte("---")

// ErrInvalidFrontmatter is returned for a frontmatter block that cannot be split or decoded.
var ErrInvalidFrontmatter = errors.New("invalid frontmatter")

// document is a markdown file split into its raw frontmatter and body.
type document struct {
	front []byte
	body  []byte
}

// splitFrontmatter separates the YAML block delimited by --- lines from the body. Content
// without a leading delimiter has no frontmatter.
func splitFrontmatter(content []byte) (*document, error) {
	content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))

	if !bytes.HasPrefix(content, delimiter) {
		return &document{body: content}, nil
	}

	rest := bytes.TrimPrefix(content, delimiter)
	nl := bytes.IndexByte(rest, '\n')
	if nl == -1 || len(bytes.TrimSpace(rest[:nl])) > 0 {
		return nil, errors.Wrap(ErrInvalidFrontmatter, "opening delimiter must be on its own line")
	}
	rest = rest[nl+1:]

	var front []byte
	switch {
	case bytes.HasPrefix(rest, delimiter):
		rest = rest[len(delimiter):]
	default:
		end := bytes.Index(rest, append([]byte("\n"), delimiter...))
		if end == -1 {
			return nil, errors.Wrap(ErrInvalidFrontmatter, "closing delimiter not found")
		}
		front = rest[:end+1]
		rest = rest[end+1+len(delimiter):]
	}

	// drop the remainder of the closing delimiter line
	if nl := bytes.IndexByte(rest, '\n'); nl != -1 {
		rest = rest[nl+1:]
	} else {
		rest = nil
	}

	return &document{front: front, body: rest}, nil
}

func (d *document) decode(v interface{}) error {
	if len(bytes.TrimSpace(d.front)) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(d.front, v); err != nil {
		return errors.Wrap(ErrInvalidFrontmatter, err.Error())
	}
	return nil
}

// timeLayouts are the accepted spellings of a frontmatter date.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// flexTime is an optional frontmatter timestamp.
type flexTime struct {
	t *time.Time
}

func (ft *flexTime) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return errors.Errorf("line %d: expected a date", value.Line)
	}
	s := strings.TrimSpace(value.Value)
	if s == "" || value.Tag == "!!null" {
		return nil
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			ft.t = &t
			return nil
		}
	}

	return errors.Errorf("line %d: cannot parse date %q", value.Line, s)
}

// stringList accepts either a YAML sequence or a comma-separated string.
type stringList []string

func (sl *stringList) UnmarshalYAML(value *yaml.Node) error {
	var raw []string

	switch value.Kind {
	case yaml.SequenceNode:
		if err := value.Decode(&raw); err != nil {
			return err
		}
	case yaml.ScalarNode:
		if value.Tag != "!!null" {
			raw = strings.Split(value.Value, ",")
		}
	default:
		return errors.Errorf("line %d: expected a list or a comma-separated string", value.Line)
	}

	list := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	*sl = list

	return nil
}

// markdownFiles lists the .md files of dir. A missing directory has no files.
func markdownFiles(dir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "os.ReadDir")
	}

	files := entries[:0]
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ext {
			files = append(files, e)
		}
	}

	return files, nil
}

// writeFile atomically replaces path with data, keeping its mode and modification time.
func writeFile(path string, data []byte, info os.FileInfo) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".newsletter-*"+ext)
	if err != nil {
		return errors.Wrap(err, "os.CreateTemp")
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "sync")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close")
	}
	if err := os.Chmod(tmp.Name(), info.Mode().Perm()); err != nil {
		return errors.Wrap(err, "os.Chmod")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, "os.Rename")
	}

	return errors.Wrap(os.Chtimes(path, info.ModTime(), info.ModTime()), "os.Chtimes")
}
