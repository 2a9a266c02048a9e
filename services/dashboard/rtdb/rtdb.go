// Package rtdb models a realtime key-path database: values live at slash-separated
// paths and subscribers are pushed the current subtree whenever it changes.
package rtdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Store is implemented by every realtime store backend.
type Store interface {
	// Get returns the subtree rooted at path. The empty path is the root.
	Get(ctx context.Context, path string) (Snapshot, error)
	// Set writes value at path, replacing whatever subtree was there. Maps are
	// flattened into leaves; a nil value deletes the subtree.
	Set(ctx context.Context, path string, value any) error
	// Update applies several Set writes atomically. Subscribers are notified
	// once per update, after every path has been written. Paths must not
	// overlap.
	Update(ctx context.Context, values map[string]any) error
	// Subscribe delivers the subtree at path once and again after every write at,
	// above or below path. Read failures are reported through onError.
	Subscribe(path string, onValue func(Snapshot), onError func(error)) CancelFunc
	// SubscribeConnection reports the current connection state and every change.
	SubscribeConnection(fn func(connected bool)) CancelFunc
}

// ErrOverlappingPaths is returned by Update when one path lies at or below
// another path of the same update.
var ErrOverlappingPaths = errors.New("update paths overlap")

// normalizeUpdate cleans and validates the paths of a multi-path update.
func normalizeUpdate(values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for p, v := range values {
		n, err := Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out[CleanPath(p)] = n
	}
	paths := make([]string, 0, len(out))
	for p := range out {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for i := range paths {
		for _, other := range paths[i+1:] {
			if Related(paths[i], other) {
				return nil, fmt.Errorf("%w: %q and %q", ErrOverlappingPaths, paths[i], other)
			}
		}
	}
	if len(out) != len(values) {
		return nil, fmt.Errorf("%w: duplicate paths after cleaning", ErrOverlappingPaths)
	}
	return out, nil
}

// CancelFunc removes a subscription. It is safe to call more than once.
type CancelFunc func()

// Snapshot is an immutable view of a subtree.
type Snapshot struct {
	path  string
	value any
}

// NewSnapshot wraps a decoded JSON value (maps, slices, float64, bool, string).
func NewSnapshot(path string, value any) Snapshot {
	return Snapshot{path: CleanPath(path), value: value}
}

// Path returns the location the snapshot was taken at.
func (s Snapshot) Path() string { return s.path }

// Exists reports whether any value is stored at the snapshot's path.
func (s Snapshot) Exists() bool { return s.value != nil }

// Value returns the raw decoded value.
func (s Snapshot) Value() any { return s.value }

// Child walks a relative path below the snapshot.
func (s Snapshot) Child(rel string) Snapshot {
	cur := s.value
	for _, seg := range Segments(rel) {
		m, ok := cur.(map[string]any)
		if !ok {
			cur = nil
			break
		}
		cur = m[seg]
	}
	return Snapshot{path: Join(s.path, rel), value: cur}
}

// Bool decodes booleans and the numeric or string forms devices tend to publish.
// Anything else is false.
func (s Snapshot) Bool() bool {
	switch v := s.value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && b
	}
	return false
}

// Float decodes numbers and numeric strings. Anything else is 0.
func (s Snapshot) Float() float64 {
	switch v := s.value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil {
			return f
		}
	}
	return 0
}

// Int truncates Float.
func (s Snapshot) Int() int64 { return int64(s.Float()) }

// String returns string values as-is and formats scalars; maps and absent
// values yield "".
func (s Snapshot) String() string {
	switch v := s.value.(type) {
	case string:
		return v
	case bool, float64, int, int64:
		return fmt.Sprint(v)
	}
	return ""
}

// MarshalJSON encodes the underlying value.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.value)
}

// Normalize converts arbitrary Go values (structs, typed maps, ints) into the
// decoded-JSON shapes snapshots carry.
func Normalize(value any) (any, error) {
	switch v := value.(type) {
	case nil, bool, float64, string:
		return v, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return out, nil
}

// Flatten expands a normalized value into leaf path/value pairs under path.
// Empty maps produce no leaves.
func Flatten(path string, value any) map[string]any {
	leaves := make(map[string]any)
	flattenInto(leaves, CleanPath(path), value)
	return leaves
}

func flattenInto(leaves map[string]any, path string, value any) {
	switch v := value.(type) {
	case nil:
		return
	case map[string]any:
		for k, child := range v {
			flattenInto(leaves, Join(path, k), child)
		}
	default:
		leaves[path] = v
	}
}

// BuildTree assembles the subtree at root from leaves keyed by absolute path.
// Leaves outside root are ignored.
func BuildTree(root string, leaves map[string]any) any {
	root = CleanPath(root)
	if v, ok := leaves[root]; ok && root != "" {
		return v
	}
	var tree map[string]any
	for p, v := range leaves {
		rel, ok := Relative(root, p)
		if !ok || rel == "" {
			continue
		}
		if tree == nil {
			tree = make(map[string]any)
		}
		insert(tree, Segments(rel), v)
	}
	if tree == nil {
		return nil
	}
	return tree
}

func insert(tree map[string]any, segs []string, v any) {
	for i, seg := range segs {
		if i == len(segs)-1 {
			tree[seg] = v
			return
		}
		next, ok := tree[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			tree[seg] = next
		}
		tree = next
	}
}
