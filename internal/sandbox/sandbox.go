// Package sandbox confines client-supplied paths to the print root.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	ErrPathTraversal = errors.New("path escapes the print root")
	ErrNotFound      = errors.New("path not found")
)

type Root struct {
	base string
}

func New(base string) (*Root, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolve print root: %w", err)
	}
	return &Root{base: filepath.Clean(abs)}, nil
}

func (r *Root) Base() string {
	return r.base
}

// Resolve joins rel onto the root and rejects results outside it.
func (r *Root) Resolve(rel string) (string, error) {
	rel = strings.ReplaceAll(rel, `\`, "/")
	target := filepath.Clean(filepath.Join(r.base, filepath.FromSlash(rel)))
	back, err := filepath.Rel(r.base, target)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, rel)
	}
	return target, nil
}

// ResolveFile is Resolve plus an existence check for a regular file.
func (r *Root) ResolveFile(rel string) (string, error) {
	target, err := r.Resolve(rel)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrNotFound, rel)
	}
	return target, nil
}

type Entry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  *int64 `json:"size"`
}

// List describes rel: the sorted children of a directory, or the file itself.
func (r *Root) List(rel string) ([]Entry, error) {
	target, err := r.Resolve(rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return nil, err
	}

	if !info.IsDir() {
		return []Entry{r.entry(target, info)}, nil
	}

	children, err := os.ReadDir(target)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Name() < children[j].Name() })

	entries := make([]Entry, 0, len(children))
	for _, child := range children {
		childInfo, err := child.Info()
		if err != nil {
			continue
		}
		entries = append(entries, r.entry(filepath.Join(target, child.Name()), childInfo))
	}
	return entries, nil
}

func (r *Root) entry(path string, info os.FileInfo) Entry {
	rel, _ := filepath.Rel(r.base, path)
	e := Entry{
		Name:  info.Name(),
		Path:  filepath.ToSlash(rel),
		IsDir: info.IsDir(),
	}
	if info.Mode().IsRegular() {
		size := info.Size()
		e.Size = &size
	}
	return e
}
