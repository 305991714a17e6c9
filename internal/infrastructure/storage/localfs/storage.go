package localfs

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dkotenko/document-intake/internal/core/domain"
)

// Storage keeps documents on the local filesystem, one directory per area.
// Document refs are area-relative slash paths, so they stay stable across
// hosts pointing at the same tree.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/documents"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) Save(_ context.Context, area, name string, data io.Reader) (domain.DocumentRef, error) {
	// Uploaded names are untrusted; keep only the base component.
	cleanName := filepath.Base(filepath.Clean(name))
	if cleanName == "." || cleanName == ".." || cleanName == string(filepath.Separator) {
		return domain.DocumentRef{}, domain.WrapError(domain.ErrInvalidInput, "save document", fmt.Errorf("unusable file name %q", name))
	}

	dir := filepath.Join(s.basePath, area)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.DocumentRef{}, fmt.Errorf("create area dir: %w", err)
	}

	path := filepath.Join(dir, cleanName)
	f, err := os.Create(path)
	if err != nil {
		return domain.DocumentRef{}, fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return domain.DocumentRef{}, fmt.Errorf("write file: %w", err)
	}
	return s.Locate(area, cleanName), nil
}

// ListDocuments walks the area tree in lexical order, skipping directories
// and hidden entries, and hands each document ref to fn. A non-nil fn error
// stops the walk and is returned as-is.
func (s *Storage) ListDocuments(ctx context.Context, area string, fn func(domain.DocumentRef) error) error {
	root := filepath.Join(s.basePath, area)
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return domain.WrapError(domain.ErrNotFound, "list documents", fmt.Errorf("area %s", area))
		}
		return fmt.Errorf("stat area dir: %w", err)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("walk %s: %w", path, walkErr)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}
		return fn(s.Locate(area, filepath.ToSlash(rel)))
	})
}

func (s *Storage) ReadBytes(_ context.Context, ref domain.DocumentRef) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.basePath, filepath.FromSlash(ref.Ref)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.WrapError(domain.ErrNotFound, "read document", fmt.Errorf("ref %s", ref.Ref))
		}
		return nil, fmt.Errorf("read document: %w", err)
	}
	return data, nil
}

func (s *Storage) Locate(area, name string) domain.DocumentRef {
	ref := name
	if area != "" {
		ref = area + "/" + name
	}
	url := ""
	if absPath, err := filepath.Abs(filepath.Join(s.basePath, filepath.FromSlash(ref))); err == nil {
		url = "file://" + filepath.ToSlash(absPath)
	}
	return domain.DocumentRef{
		Name: name,
		Ref:  ref,
		URL:  url,
		Area: area,
	}
}
