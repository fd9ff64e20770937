// Package scanner walks the specs root, groups markdown files into
// per-specification document bundles, and guarantees every canonical file
// carries a valid identity.
package scanner

import (
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/identity"
	"github.com/starford/ansuz/internal/storage"
)

// CanonicalFile is the one file per specification that carries identity and
// sync-state frontmatter.
const CanonicalFile = "spec.md"

const contractsDir = "contracts"

// SpecDocument is one specification: a directory of markdown files keyed by
// relative filename. Documents are rebuilt on every scan; only frontmatter
// persists across scans.
type SpecDocument struct {
	Name     string               // directory name, often carrying a numeric prefix
	Path     string               // absolute directory path
	RemoteID int                  // parsed from the NNN- prefix, 0 when absent
	Files    map[string]*SpecFile // relative filename -> file
}

// Canonical returns the spec.md file, or nil when the bundle has none.
func (d *SpecDocument) Canonical() *SpecFile {
	return d.Files[CanonicalFile]
}

// SpecFile is one markdown file in a specification bundle.
type SpecFile struct {
	Path     string // absolute path
	Filename string // relative to the spec directory
	Content  string // raw on-disk content
	Markdown string // body, content minus the metadata block
	Meta     frontmatter.Meta
}

// HasChanged reports whether the file body diverged from its recorded
// sync_hash.
func (f *SpecFile) HasChanged() bool {
	return frontmatter.HasChanged(f.Meta, f.Markdown)
}

// Scanner builds SpecDocument bundles from the specs root.
type Scanner struct {
	store  *storage.FS
	logger *slog.Logger
}

// New creates a Scanner over the given root.
func New(store *storage.FS, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{store: store, logger: logger}
}

// Root returns the absolute specs root path.
func (s *Scanner) Root() string { return s.store.Root() }

// ScanAll scans every immediate subdirectory of the root. Hidden directories
// are skipped, as are directories with no markdown files. A directory whose
// frontmatter fails schema validation is skipped with a warning rather than
// failing the whole scan. A missing root yields an empty result.
func (s *Scanner) ScanAll() ([]*SpecDocument, error) {
	dirs, err := s.store.ListDirs()
	if err != nil {
		return nil, fmt.Errorf("scanner: %w", err)
	}

	var out []*SpecDocument
	for _, name := range dirs {
		doc, err := s.ScanDirectory(name)
		if err != nil {
			s.logger.Warn("scan: directory skipped",
				slog.String("dir", name),
				slog.String("error", err.Error()))
			continue
		}
		if doc != nil {
			out = append(out, doc)
		}
	}
	return out, nil
}

// ScanDirectory scans one spec directory by name. It returns (nil, nil) when
// the directory contains no markdown files. Files under contracts/ are read
// without identity processing. The canonical file is guaranteed a valid
// spec_id on return; a failed identity persistence is logged, not returned.
func (s *Scanner) ScanDirectory(name string) (*SpecDocument, error) {
	files, err := s.store.ListMarkdown(name)
	if err != nil {
		return nil, fmt.Errorf("scanner: %w", err)
	}
	if len(files) == 0 {
		return nil, nil
	}

	abs, err := s.store.Abs(name)
	if err != nil {
		return nil, fmt.Errorf("scanner: %w", err)
	}

	doc := &SpecDocument{
		Name:     name,
		Path:     abs,
		RemoteID: parseRemoteID(name),
		Files:    make(map[string]*SpecFile, len(files)),
	}

	for _, fn := range files {
		sf, err := s.readFile(name, fn)
		if err != nil {
			return nil, err
		}
		doc.Files[fn] = sf
	}

	contracts, err := s.store.ListMarkdown(path.Join(name, contractsDir))
	if err != nil {
		return nil, fmt.Errorf("scanner: %w", err)
	}
	for _, fn := range contracts {
		rel := path.Join(contractsDir, fn)
		sf, err := s.readFile(name, rel)
		if err != nil {
			return nil, err
		}
		doc.Files[rel] = sf
	}

	s.ensureIdentity(doc)
	return doc, nil
}

// FindByRemoteID locates a document by its platform-native numeric id:
// first by the directory-name prefix, then by the canonical file's stored
// issue number. It never consults the remote platform.
func (s *Scanner) FindByRemoteID(id int) (*SpecDocument, error) {
	docs, err := s.ScanAll()
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if doc.RemoteID == id {
			return doc, nil
		}
	}
	for _, doc := range docs {
		c := doc.Canonical()
		if c != nil && c.Meta.GitHub != nil && c.Meta.GitHub.IssueNumber == id {
			return doc, nil
		}
	}
	return nil, nil
}

// Persist encodes file's frontmatter plus body and writes it back to disk
// atomically, refreshing the in-memory raw content on success.
func (s *Scanner) Persist(doc *SpecDocument, file *SpecFile) error {
	data, err := frontmatter.Encode(&frontmatter.Doc{Meta: file.Meta, Body: file.Markdown})
	if err != nil {
		return err
	}
	rel := path.Join(doc.Name, file.Filename)
	if err := s.store.Write(rel, data); err != nil {
		return &apperr.FileOperationError{Op: "write", Path: rel, Err: err}
	}
	file.Content = string(data)
	return nil
}

func (s *Scanner) readFile(dir, rel string) (*SpecFile, error) {
	full := path.Join(dir, rel)
	data, err := s.store.Read(full)
	if err != nil {
		return nil, &apperr.FileOperationError{Op: "read", Path: full, Err: err}
	}

	d, err := frontmatter.Decode(data)
	if err != nil {
		if fmErr, ok := err.(*apperr.FrontmatterError); ok {
			fmErr.Path = full
		}
		return nil, err
	}

	return &SpecFile{
		Path:     filepath.Join(s.store.Root(), filepath.FromSlash(full)),
		Filename: rel,
		Content:  string(data),
		Markdown: d.Body,
		Meta:     d.Meta,
	}, nil
}

// ensureIdentity assigns a fresh spec_id to the canonical file when its
// current one is missing or malformed, and writes the file back before the
// scan returns. A persistence failure keeps the id in memory only: the
// document is still usable, and a later scan may generate a different id.
func (s *Scanner) ensureIdentity(doc *SpecDocument) {
	c := doc.Canonical()
	if c == nil || identity.IsValid(c.Meta.SpecID) {
		return
	}

	c.Meta.SpecID = identity.Generate()
	if err := s.Persist(doc, c); err != nil {
		s.logger.Warn("scan: identity persistence failed",
			slog.String("spec", doc.Name),
			slog.String("spec_id", c.Meta.SpecID),
			slog.String("error", err.Error()))
	}
}

// parseRemoteID extracts a leading numeric prefix ("042-name" -> 42) as an
// optional remote id hint.
func parseRemoteID(name string) int {
	i := strings.IndexByte(name, '-')
	if i <= 0 {
		return 0
	}
	n, err := strconv.Atoi(name[:i])
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
