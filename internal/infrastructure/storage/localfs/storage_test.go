package localfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dkotenko/document-intake/internal/core/domain"
)

func TestSaveThenReadBytesRoundTrip(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ref, err := storage.Save(context.Background(), "uploads", "inv001.pdf", strings.NewReader("%PDF fake"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if ref.Name != "inv001.pdf" || ref.Area != "uploads" || ref.Ref != "uploads/inv001.pdf" {
		t.Fatalf("unexpected ref: %+v", ref)
	}
	if !strings.HasPrefix(ref.URL, "file://") {
		t.Fatalf("expected file url, got %q", ref.URL)
	}

	data, err := storage.ReadBytes(context.Background(), ref)
	if err != nil {
		t.Fatalf("ReadBytes() error = %v", err)
	}
	if string(data) != "%PDF fake" {
		t.Fatalf("unexpected data: %q", data)
	}
}

func TestSaveStripsPathComponents(t *testing.T) {
	base := t.TempDir()
	storage, err := New(base)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ref, err := storage.Save(context.Background(), "uploads", "../../evil.txt", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if ref.Name != "evil.txt" {
		t.Fatalf("expected base name only, got %q", ref.Name)
	}
	if _, err := os.Stat(filepath.Join(base, "uploads", "evil.txt")); err != nil {
		t.Fatalf("expected file inside area dir: %v", err)
	}
}

func TestListDocumentsWalksLexicallyAndSkipsHidden(t *testing.T) {
	base := t.TempDir()
	storage, err := New(base)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	for _, name := range []string{"b.txt", "a.txt", ".hidden"} {
		if _, err := storage.Save(ctx, "inbox", name, strings.NewReader("x")); err != nil {
			t.Fatalf("Save(%s) error = %v", name, err)
		}
	}
	if err := os.MkdirAll(filepath.Join(base, "inbox", "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(base, "inbox", "sub", "c.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write nested: %v", err)
	}

	var seen []string
	err = storage.ListDocuments(ctx, "inbox", func(ref domain.DocumentRef) error {
		seen = append(seen, ref.Name)
		return nil
	})
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	want := []string{"a.txt", "b.txt", "sub/c.txt"}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, seen)
		}
	}
}

func TestListDocumentsStopsOnCallbackError(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	for _, name := range []string{"a.txt", "b.txt"} {
		if _, err := storage.Save(ctx, "inbox", name, strings.NewReader("x")); err != nil {
			t.Fatalf("Save(%s) error = %v", name, err)
		}
	}

	errStop := errors.New("stop")
	calls := 0
	err = storage.ListDocuments(ctx, "inbox", func(domain.DocumentRef) error {
		calls++
		return errStop
	})
	if !errors.Is(err, errStop) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected walk to stop after first callback, got %d calls", calls)
	}
}

func TestListDocumentsMissingAreaIsNotFound(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = storage.ListDocuments(context.Background(), "nope", func(domain.DocumentRef) error { return nil })
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
