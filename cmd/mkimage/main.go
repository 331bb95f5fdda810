// Command mkimage builds a kestrel root filesystem image from a host
// skeleton directory, the way biscuit/src/mkfs/mkfs.go walks a skeldir
// with filepath.WalkDir and replicates it into the target filesystem.
// spec.md §1 puts the on-disk block layout out of scope, so the image
// mkimage writes is a flat stream of length-prefixed (path, bytes)
// records rather than an inode-based filesystem; cmd/kestrel's init
// loader reads this same format back with shell.LoadImage.
package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"kestrel/internal/shell"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "usage: mkimage <skeleton-dir> <output-image>\n")
		os.Exit(1)
	}
	skelDir, outPath := os.Args[1], os.Args[2]

	root := shell.NewFS()
	if err := addSkeleton(root, skelDir); err != nil {
		fmt.Fprintf(os.Stderr, "mkimage: %v\n", err)
		os.Exit(1)
	}

	out, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkimage: creating %s: %v\n", outPath, err)
		os.Exit(1)
	}
	defer out.Close()

	n, err := shell.WriteImage(out, root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkimage: writing %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Printf("mkimage: wrote %d files to %s\n", n, outPath)
}

// addSkeleton walks skelDir and replicates every regular file it finds
// into root, mirroring biscuit's addfiles.
func addSkeleton(root *shell.FS, skelDir string) error {
	return filepath.WalkDir(skelDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("accessing %q: %w", path, err)
		}
		rel, err := filepath.Rel(skelDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		dst := "/" + filepath.ToSlash(rel)

		if d.IsDir() {
			if errt := root.Mkdir(dst); errt != 0 {
				return fmt.Errorf("mkdir %s: %v", dst, errt)
			}
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %q: %w", path, err)
		}
		backing, errt := root.Open(dst, true, true)
		if errt != 0 {
			return fmt.Errorf("creating %s: %v", dst, errt)
		}
		if _, err := backing.WriteAt(data, 0); err != nil {
			return fmt.Errorf("writing %s: %w", dst, err)
		}
		return nil
	})
}
