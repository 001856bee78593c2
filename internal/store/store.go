package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Artifact describes one stored script file.
type Artifact struct {
	Name      string    `json:"name"`
	SizeBytes int64     `json:"size"`
	CreatedAt time.Time `json:"created"`
	Path      string    `json:"path"`
}

// Store is a filesystem-backed registry of uploaded scripts, keyed by
// file name. Two concurrent saves of the same name race last-write-wins;
// the write itself is atomic (temp file + rename) so readers never see
// a torn artifact.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create scripts dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

// Path returns the artifact path for name. Name validation happens at
// the control surface; Path itself never escapes the store directory
// because names are single path elements.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Save writes content for name, fully overwriting any prior artifact.
func (s *Store) Save(name string, content []byte) (Artifact, error) {
	dst := s.Path(name)
	tmp, err := os.CreateTemp(s.dir, "."+name+".tmp-*")
	if err != nil {
		return Artifact{}, fmt.Errorf("save %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return Artifact{}, fmt.Errorf("save %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return Artifact{}, fmt.Errorf("save %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0o640); err != nil {
		_ = os.Remove(tmpName)
		return Artifact{}, fmt.Errorf("save %s: %w", name, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return Artifact{}, fmt.Errorf("save %s: %w", name, err)
	}
	fi, err := os.Stat(dst)
	if err != nil {
		return Artifact{}, fmt.Errorf("save %s: %w", name, err)
	}
	return Artifact{
		Name:      name,
		SizeBytes: fi.Size(),
		CreatedAt: fi.ModTime(),
		Path:      dst,
	}, nil
}

// Exists reports whether an artifact with name is stored.
func (s *Store) Exists(name string) bool {
	fi, err := os.Stat(s.Path(name))
	return err == nil && fi.Mode().IsRegular()
}

// List enumerates all stored artifacts in name order. Dotfiles (including
// in-flight temp files) are skipped.
func (s *Store) List() ([]Artifact, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	arts := make([]Artifact, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		arts = append(arts, Artifact{
			Name:      e.Name(),
			SizeBytes: fi.Size(),
			CreatedAt: fi.ModTime(),
			Path:      s.Path(e.Name()),
		})
	}
	sort.Slice(arts, func(i, j int) bool { return arts[i].Name < arts[j].Name })
	return arts, nil
}
