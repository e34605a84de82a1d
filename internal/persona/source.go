package persona

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Source reads raw persona documents by name.
type Source interface {
	Read(ctx context.Context, name string) ([]byte, error)
}

// DirSource reads <Root>/<name>/config.json, falling back to config.yaml
// and config.yml.
type DirSource struct {
	Root string
}

var documentNames = []string{"config.json", "config.yaml", "config.yml"}

func (s DirSource) Read(_ context.Context, name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	for _, file := range documentNames {
		data, err := os.ReadFile(filepath.Join(s.Root, name, file))
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read persona %s: %w", name, err)
		}
	}
	return nil, fmt.Errorf("%w: %s (searched %s)", ErrNotFound, name, filepath.Join(s.Root, name))
}

// List returns the names of persona directories that hold a document.
func (s DirSource) List() ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list personas: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		for _, file := range documentNames {
			if _, err := os.Stat(filepath.Join(s.Root, e.Name(), file)); err == nil {
				names = append(names, e.Name())
				break
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// Sources reads from each source in order and returns the first document
// found. ErrNotFound is returned only when every source misses.
type Sources []Source

func (s Sources) Read(ctx context.Context, name string) ([]byte, error) {
	for _, src := range s {
		data, err := src.Read(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return data, err
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func checkName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("persona name is required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid persona name %q", name)
	}
	return nil
}
