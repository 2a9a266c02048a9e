package rtdb

import "strings"

// CleanPath trims surrounding slashes and collapses empty segments.
func CleanPath(p string) string {
	return strings.Join(Segments(p), "/")
}

// Segments splits a path into its non-empty segments.
func Segments(p string) []string {
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Join concatenates path fragments.
func Join(parts ...string) string {
	return CleanPath(strings.Join(parts, "/"))
}

// Relative returns p relative to root when p is root or lies below it.
func Relative(root, p string) (string, bool) {
	root, p = CleanPath(root), CleanPath(p)
	switch {
	case root == "":
		return p, true
	case p == root:
		return "", true
	case strings.HasPrefix(p, root+"/"):
		return p[len(root)+1:], true
	}
	return "", false
}

// Related reports whether a write at one path can change the subtree at the
// other: one is equal to, or an ancestor of, the other.
func Related(a, b string) bool {
	if _, ok := Relative(a, b); ok {
		return true
	}
	_, ok := Relative(b, a)
	return ok
}

func relatedToAny(path string, changed []string) bool {
	for _, c := range changed {
		if Related(path, c) {
			return true
		}
	}
	return false
}

// Ancestors lists the strict ancestors of p, nearest last, excluding the root.
func Ancestors(p string) []string {
	segs := Segments(p)
	out := make([]string, 0, len(segs))
	for i := 1; i < len(segs); i++ {
		out = append(out, strings.Join(segs[:i], "/"))
	}
	return out
}
