// Package testutil provides shared test helpers for setting up spec roots.
package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/scanner"
	"github.com/starford/ansuz/internal/storage"
)

// TestScanner creates a temporary specs root with a scanner bound to it.
func TestScanner(t *testing.T) (*scanner.Scanner, string) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return scanner.New(store, slog.New(slog.DiscardHandler)), root
}

// WriteSpec writes a document's canonical file under root/dir.
func WriteSpec(t *testing.T, root, dir, content string) {
	t.Helper()
	WriteFile(t, root, filepath.Join(dir, scanner.CanonicalFile), content)
}

// WriteFile writes an arbitrary file under the specs root.
func WriteFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// ReadMeta decodes the frontmatter of a document's canonical file.
func ReadMeta(t *testing.T, root, dir string) frontmatter.Meta {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, dir, scanner.CanonicalFile))
	if err != nil {
		t.Fatal(err)
	}
	doc, err := frontmatter.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	return doc.Meta
}
