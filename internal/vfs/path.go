package vfs

import "strings"

// Resolve normalizes path against cwd per spec.md §4.6: an "@<hex>" prefix
// denotes a mount root and replaces cwd outright, "." is dropped, and ".."
// pops one component but never the root. Absolute paths (leading "/") are
// resolved against the root rather than cwd.
func Resolve(cwd, path string) string {
	base := cwd
	if strings.HasPrefix(path, "@") {
		if i := strings.IndexByte(path, '/'); i >= 0 {
			base = path[:i]
			path = path[i+1:]
		} else {
			base = path
			path = ""
		}
	} else if strings.HasPrefix(path, "/") {
		base = "/"
		path = strings.TrimPrefix(path, "/")
	}

	segs := splitNonEmpty(base)
	root := ""
	if strings.HasPrefix(base, "@") {
		root = segs[0]
		segs = segs[1:]
	}

	for _, seg := range splitNonEmpty(path) {
		switch seg {
		case ".":
			// dropped
		case "..":
			if len(segs) > 0 {
				segs = segs[:len(segs)-1]
			}
		default:
			segs = append(segs, seg)
		}
	}

	result := strings.Join(segs, "/")
	if root != "" {
		if result == "" {
			return root + "/"
		}
		return root + "/" + result
	}
	return "/" + result
}

func splitNonEmpty(p string) []string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if s != "" && s != "@" {
			out = append(out, s)
		}
	}
	return out
}
