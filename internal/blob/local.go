package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore keeps each namespace in its own directory under a root.
type LocalStore struct {
	root string
}

// NewLocalStore creates the namespace directories under root.
func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve blob root: %w", err)
	}
	for _, ns := range Namespaces {
		if err := os.MkdirAll(filepath.Join(abs, string(ns)), 0o755); err != nil {
			return nil, fmt.Errorf("create namespace %s: %w", ns, err)
		}
	}
	return &LocalStore{root: abs}, nil
}

// Root returns the absolute store root.
func (s *LocalStore) Root() string { return s.root }

// Dir returns the directory backing ns.
func (s *LocalStore) Dir(ns Namespace) string {
	return filepath.Join(s.root, string(ns))
}

func (s *LocalStore) Path(ns Namespace, name string) string {
	return filepath.Join(s.root, string(ns), name)
}

// validateName rejects names that could escape the namespace directory.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func validNamespace(ns Namespace) error {
	for _, n := range Namespaces {
		if n == ns {
			return nil
		}
	}
	return fmt.Errorf("unknown namespace %q", ns)
}

func (s *LocalStore) resolve(ns Namespace, name string) (string, error) {
	if err := validNamespace(ns); err != nil {
		return "", err
	}
	if err := validateName(name); err != nil {
		return "", err
	}
	return s.Path(ns, name), nil
}

// Put writes r to ns/name, replacing any existing blob. The write goes to a
// temp file first so readers never see a partial blob.
func (s *LocalStore) Put(ctx context.Context, ns Namespace, name string, r io.Reader) error {
	path, err := s.resolve(ns, name)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write blob %s/%s: %w", ns, name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close blob %s/%s: %w", ns, name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("commit blob %s/%s: %w", ns, name, err)
	}
	return nil
}

func (s *LocalStore) Get(_ context.Context, ns Namespace, name string) (io.ReadCloser, error) {
	path, err := s.resolve(ns, name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, ns, name)
	}
	return f, err
}

// List returns the blobs in ns sorted by name. Temp files are skipped.
func (s *LocalStore) List(_ context.Context, ns Namespace) ([]Object, error) {
	if err := validNamespace(ns); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.Dir(ns))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", ns, err)
	}

	objects := make([]Object, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		objects = append(objects, Object{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	return objects, nil
}

// Copy copies src/name to dst/newName.
func (s *LocalStore) Copy(ctx context.Context, src, dst Namespace, name, newName string) error {
	rc, err := s.Get(ctx, src, name)
	if err != nil {
		return err
	}
	defer rc.Close()
	return s.Put(ctx, dst, newName, rc)
}

// Delete removes ns/name. Deleting a missing blob is not an error.
func (s *LocalStore) Delete(_ context.Context, ns Namespace, name string) error {
	path, err := s.resolve(ns, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s/%s: %w", ns, name, err)
	}
	return nil
}

func (s *LocalStore) Exists(_ context.Context, ns Namespace, name string) (bool, error) {
	path, err := s.resolve(ns, name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}
