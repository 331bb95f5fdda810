package shell

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// imageMagic tags a kestrel root filesystem image; cmd/mkimage writes it,
// cmd/kestrel's init loader and LoadImage read it back. The format is a
// flat (path, bytes) stream rather than an inode layout, per spec.md §1's
// "on-disk layout" Non-goal -- mkimage's job here is staging a skeleton
// directory for the hosted build, not a real block-device format.
const imageMagic = "KIMG0001"

// WriteImage serializes every regular file in fs (directories are implied
// by path prefixes, as in a tar stream) to w, sorted by path for
// deterministic image bytes across runs. It returns the number of files
// written.
func WriteImage(w io.Writer, fs *FS) (int, error) {
	if _, err := io.WriteString(w, imageMagic); err != nil {
		return 0, err
	}

	fs.mu.Lock()
	paths := make([]string, 0, len(fs.files))
	for p := range fs.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var hdr [8]byte
	for _, p := range paths {
		f := fs.files[p]
		pathBytes := []byte(p)
		binary.LittleEndian.PutUint32(hdr[:4], uint32(len(pathBytes)))
		binary.LittleEndian.PutUint32(hdr[4:], uint32(len(f.data)))
		if _, err := w.Write(hdr[:]); err != nil {
			fs.mu.Unlock()
			return 0, err
		}
		if _, err := w.Write(pathBytes); err != nil {
			fs.mu.Unlock()
			return 0, err
		}
		if _, err := w.Write(f.data); err != nil {
			fs.mu.Unlock()
			return 0, err
		}
	}
	fs.mu.Unlock()
	return len(paths), nil
}

// LoadImage reads an image written by WriteImage into dst, creating parent
// directories as needed.
func LoadImage(r io.Reader, dst *FS) (int, error) {
	magic := make([]byte, len(imageMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return 0, err
	}
	if string(magic) != imageMagic {
		return 0, fmt.Errorf("shell: bad image magic %q", magic)
	}

	n := 0
	var hdr [8]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err == io.EOF {
			break
		} else if err != nil {
			return n, err
		}
		pathLen := binary.LittleEndian.Uint32(hdr[:4])
		dataLen := binary.LittleEndian.Uint32(hdr[4:])

		pathBytes := make([]byte, pathLen)
		if _, err := io.ReadFull(r, pathBytes); err != nil {
			return n, err
		}
		data := make([]byte, dataLen)
		if _, err := io.ReadFull(r, data); err != nil {
			return n, err
		}

		backing, errt := dst.Open(string(pathBytes), true, true)
		if errt != 0 {
			return n, fmt.Errorf("shell: loading %s: %v", pathBytes, errt)
		}
		if _, err := backing.WriteAt(data, 0); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
