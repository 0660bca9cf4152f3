package markdown

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/athomewithrose/homeletter"
)

// Newsletter defaults
const (
	DefaultSubject    = "Newsletter from At home with Rose"
	DefaultSalutation = "Hi friends!"
	DefaultSignOff    = "Talk soon,"
	DefaultSignature  = "Ashley"
)

type newsletterMeta struct {
	Subject           string            `yaml:"subject"`
	PreviewText       string            `yaml:"previewText"`
	Salutation        string            `yaml:"salutation"`
	SignOff           string            `yaml:"signOff"`
	Signature         string            `yaml:"signature"`
	FeaturedBlogSlugs stringList        `yaml:"featuredBlogSlugs"`
	Status            homeletter.Status `yaml:"status"`
	ScheduledAt       flexTime          `yaml:"scheduledAt"`
	SentAt            flexTime          `yaml:"sentAt"`
}

type newsletterService struct {
	dir    string
	logger zerolog.Logger

	mu   sync.Mutex
	lock *flock.Flock
}

// NewNewsletterService returns a newsletter store reading the .md files of dir.
func NewNewsletterService(dir string, logger zerolog.Logger) homeletter.NewsletterService {
	return &newsletterService{
		dir:    dir,
		logger: logger,
		lock:   flock.New(filepath.Join(dir, ".newsletters.lock")),
	}
}

// FindAll returns newsletters newest first, skipping files that fail to parse
func (ns *newsletterService) FindAll(status homeletter.Status) ([]homeletter.Newsletter, error) {
	files, err := markdownFiles(ns.dir)
	if err != nil {
		return nil, err
	}

	newsletters := make([]homeletter.Newsletter, 0, len(files))
	for _, f := range files {
		n, err := ns.load(strings.TrimSuffix(f.Name(), ext))
		if err != nil {
			ns.logger.Warn().Err(err).Str("file", f.Name()).Msg("skipping newsletter")
			continue
		}
		if n == nil || (status != "" && n.Status != status) {
			continue
		}
		newsletters = append(newsletters, *n)
	}

	sort.SliceStable(newsletters, func(i, j int) bool {
		a, b := newsletters[i], newsletters[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	return newsletters, nil
}

// FindByID returns the newsletter stored as <id>.md, or nil
func (ns *newsletterService) FindByID(id string) (*homeletter.Newsletter, error) {
	if !validID(id) {
		return nil, nil
	}
	return ns.load(id)
}

// LatestDraft returns the newest draft, or nil
func (ns *newsletterService) LatestDraft() (*homeletter.Newsletter, error) {
	drafts, err := ns.FindAll(homeletter.StatusDraft)
	if err != nil {
		return nil, err
	}
	if len(drafts) == 0 {
		return nil, nil
	}
	return &drafts[0], nil
}

// UpdateStatus rewrites the status, and sentAt when given, of the frontmatter. Other
// keys and the body are kept.
func (ns *newsletterService) UpdateStatus(id string, status homeletter.Status, sentAt *time.Time) (bool, error) {
	const op = "markdown.UpdateStatus"

	if !status.Valid() {
		return false, homeletter.Errorf(homeletter.ErrInvalid, op, "invalid status %q", status)
	}
	if !validID(id) {
		return false, nil
	}

	if _, err := os.Stat(ns.path(id)); os.IsNotExist(err) {
		return false, nil
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()

	if err := ns.lock.Lock(); err != nil {
		return false, errors.Wrap(err, "flock.Lock")
	}
	defer func() {
		_ = ns.lock.Unlock()
	}()

	path := ns.path(id)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "os.Stat")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return false, errors.Wrap(err, "os.ReadFile")
	}
	doc, err := splitFrontmatter(content)
	if err != nil {
		return false, errors.Wrapf(err, "%s", filepath.Base(path))
	}

	front, err := setFrontmatterKeys(doc.front, status, sentAt)
	if err != nil {
		return false, errors.Wrapf(err, "%s", filepath.Base(path))
	}

	var buf bytes.Buffer
	buf.Write(delimiter)
	buf.WriteByte('\n')
	buf.Write(front)
	buf.Write(delimiter)
	buf.WriteByte('\n')
	buf.Write(doc.body)

	if err := writeFile(path, buf.Bytes(), info); err != nil {
		return false, err
	}

	return true, nil
}

func (ns *newsletterService) path(id string) string {
	return filepath.Join(ns.dir, id+ext)
}

func (ns *newsletterService) load(id string) (*homeletter.Newsletter, error) {
	path := ns.path(id)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "os.Stat")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "os.ReadFile")
	}

	n, err := parseNewsletter(id, content)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", filepath.Base(path))
	}
	n.CreatedAt = info.ModTime().UTC()

	return n, nil
}

func parseNewsletter(id string, content []byte) (*homeletter.Newsletter, error) {
	doc, err := splitFrontmatter(content)
	if err != nil {
		return nil, err
	}

	var meta newsletterMeta
	if err := doc.decode(&meta); err != nil {
		return nil, err
	}

	if meta.Status == "" {
		meta.Status = homeletter.StatusDraft
	}
	if !meta.Status.Valid() {
		return nil, errors.Errorf("unknown status %q", meta.Status)
	}

	slugs := []string(meta.FeaturedBlogSlugs)
	if slugs == nil {
		slugs = []string{}
	}

	return &homeletter.Newsletter{
		ID:                id,
		Subject:           orDefault(meta.Subject, DefaultSubject),
		PreviewText:       meta.PreviewText,
		Salutation:        orDefault(meta.Salutation, DefaultSalutation),
		Message:           strings.TrimSpace(string(doc.body)),
		SignOff:           orDefault(meta.SignOff, DefaultSignOff),
		Signature:         orDefault(meta.Signature, DefaultSignature),
		FeaturedBlogSlugs: slugs,
		Status:            meta.Status,
		ScheduledAt:       meta.ScheduledAt.t,
		SentAt:            meta.SentAt.t,
	}, nil
}

// setFrontmatterKeys re-encodes front with status and sentAt replaced or appended.
func setFrontmatterKeys(front []byte, status homeletter.Status, sentAt *time.Time) ([]byte, error) {
	var root yaml.Node
	if len(bytes.TrimSpace(front)) > 0 {
		if err := yaml.Unmarshal(front, &root); err != nil {
			return nil, errors.Wrap(ErrInvalidFrontmatter, err.Error())
		}
	}

	var mapping *yaml.Node
	switch {
	case root.Kind == 0:
		mapping = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{mapping}}
	case root.Kind == yaml.DocumentNode && len(root.Content) == 1 && root.Content[0].Kind == yaml.MappingNode:
		mapping = root.Content[0]
	default:
		return nil, errors.Wrap(ErrInvalidFrontmatter, "frontmatter is not a mapping")
	}

	setKey(mapping, "status", string(status), 0)
	if sentAt != nil {
		setKey(mapping, "sentAt", sentAt.UTC().Format(time.RFC3339), yaml.DoubleQuotedStyle)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&root); err != nil {
		return nil, errors.Wrap(err, "yaml.Encode")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "yaml.Close")
	}

	return buf.Bytes(), nil
}

func setKey(mapping *yaml.Node, key, value string, style yaml.Style) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			v := mapping.Content[i+1]
			v.Kind = yaml.ScalarNode
			v.Tag = "!!str"
			v.Value = value
			v.Style = style
			v.Content = nil
			return
		}
	}

	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value, Style: style},
	)
}

func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
