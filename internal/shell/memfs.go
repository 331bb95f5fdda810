// Package shell implements the minimal collaborator of spec.md §6: the
// pipeline/redirection tokenizer, builtin dispatch, and child-spawn wiring.
// The filesystem backing store itself is out of scope (spec.md §1 "on-disk
// layout" collaborator); MemFS is the thinnest coherent stand-in that lets
// the shell's builtins and internal/wasi's PathOpener seam exercise real
// file semantics without a disk image.
package shell

import (
	"strings"
	"sync"

	"kestrel/internal/defs"
	"kestrel/internal/vfs"
)

// memFile implements vfs.Backing over a plain byte slice.
type memFile struct {
	mu   sync.Mutex
	data []byte
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off >= int64(len(f.data)) {
		return 0, nil
	}
	n := copy(p, f.data[off:])
	return n, nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:end], p)
	return len(p), nil
}

func (f *memFile) Size() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.data))
}

func (f *memFile) Truncate(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if size <= int64(len(f.data)) {
		f.data = f.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, f.data)
	f.data = grown
	return nil
}

// FS is an in-memory path -> file/directory tree, rooted at "/" and also
// answering under the "@0xE0/..." mount-root convention spec.md §4.6
// describes: kestrel's shell treats "@0xE0" as the one mounted root, so FS
// does not distinguish mount tags beyond stripping them in vfs.Resolve.
type FS struct {
	mu    sync.Mutex
	files map[string]*memFile
	dirs  map[string]bool
}

// NewFS returns an FS containing only the root directory.
func NewFS() *FS {
	return &FS{files: map[string]*memFile{}, dirs: map[string]bool{"/": true}}
}

func parentOf(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

// Open implements wasi.PathOpener and backs the shell's own redirection
// operators: create makes a missing file instead of failing, truncate
// zeroes an existing one (spec.md §4.6 / WASI path_open's O_CREAT/O_TRUNC).
func (fs *FS) Open(path string, create, truncate bool) (vfs.Backing, defs.Err_t) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.dirs[path] {
		return nil, defs.EISDIR
	}
	f, ok := fs.files[path]
	if !ok {
		if !create {
			return nil, defs.ENOPATH
		}
		f = &memFile{}
		fs.files[path] = f
		fs.dirs[parentOf(path)] = true
	} else if truncate {
		f.data = nil
	}
	return f, defs.ENONE
}

// Mkdir creates an (empty) directory, failing if path already names a file
// or directory.
func (fs *FS) Mkdir(path string) defs.Err_t {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.dirs[path] || fs.files[path] != nil {
		return defs.EEXIST
	}
	fs.dirs[path] = true
	return defs.ENONE
}

// Remove deletes a file or an empty directory.
func (fs *FS) Remove(path string) defs.Err_t {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.files[path] != nil {
		delete(fs.files, path)
		return defs.ENONE
	}
	if fs.dirs[path] {
		for p := range fs.files {
			if parentOf(p) == path {
				return defs.EINVAL
			}
		}
		delete(fs.dirs, path)
		return defs.ENONE
	}
	return defs.ENOPATH
}

// Rename moves a file from oldPath to newPath; directories are not
// supported, matching original_source's fs.rs failure mode for a directory
// target (spec.md §9's SUPPLEMENTED FEATURES).
func (fs *FS) Rename(oldPath, newPath string) defs.Err_t {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.dirs[oldPath] || fs.dirs[newPath] {
		return defs.EISDIR
	}
	f, ok := fs.files[oldPath]
	if !ok {
		return defs.ENOPATH
	}
	delete(fs.files, oldPath)
	fs.files[newPath] = f
	fs.dirs[parentOf(newPath)] = true
	return defs.ENONE
}

// List returns the direct children (files and subdirectories) of dir, per
// spec.md §9's read_dir streaming semantics note: kestrel returns the whole
// batch at once rather than modeling incremental readdir cursors, since no
// scenario in spec.md §8 observes partial reads.
func (fs *FS) List(dir string) ([]string, defs.Err_t) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.dirs[dir] {
		return nil, defs.ENOTDIR
	}
	seen := map[string]bool{}
	var names []string
	addChild := func(full string) {
		rest := strings.TrimPrefix(full, dir)
		rest = strings.TrimPrefix(rest, "/")
		if rest == "" || strings.Contains(rest, "/") {
			return
		}
		if !seen[rest] {
			seen[rest] = true
			names = append(names, rest)
		}
	}
	for p := range fs.files {
		if parentOf(p) == dir {
			addChild(p)
		}
	}
	for p := range fs.dirs {
		if p != dir && parentOf(p) == dir {
			addChild(p)
		}
	}
	return names, defs.ENONE
}
