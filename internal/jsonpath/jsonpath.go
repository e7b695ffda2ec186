// Package jsonpath resolves dotted, indexed paths such as
// "data.hardware.mem[0].size" against vendor JSON documents.
//
// Resolution never fails loudly: a missing field, a non-object parent, an
// index into a non-array, an out-of-range or malformed index and a JSON null
// all report the value as absent. Absent hardware is normal on a NAS, so
// callers treat absence as data, not as an error.
package jsonpath

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// segment is one dot-separated step of a path.
type segment struct {
	name    string
	index   int
	indexed bool
	bad     bool
}

// parseSegment splits "mem[0]" into its field name and index.
// A bracket that is not a non-negative integer marks the segment as bad.
func parseSegment(s string) segment {
	open := strings.IndexByte(s, '[')
	if open == -1 || !strings.HasSuffix(s, "]") {
		return segment{name: s}
	}

	raw := s[open+1 : len(s)-1]
	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 0 || raw == "" || raw[0] == '+' || raw[0] == '-' {
		return segment{name: s[:open], bad: true}
	}
	return segment{name: s[:open], index: idx, indexed: true}
}

// Extract walks path through doc and returns the value found there.
//
// The boolean is false whenever the value is absent; the returned Result is
// then the zero value. JSON null counts as absent.
func Extract(doc gjson.Result, path string) (gjson.Result, bool) {
	if path == "" {
		return gjson.Result{}, false
	}

	current := doc
	for _, part := range strings.Split(path, ".") {
		seg := parseSegment(part)
		if seg.bad {
			return gjson.Result{}, false
		}

		if !current.IsObject() {
			return gjson.Result{}, false
		}

		next, ok := field(current, seg.name)
		if !ok {
			return gjson.Result{}, false
		}

		if seg.indexed {
			if !next.IsArray() {
				return gjson.Result{}, false
			}
			items := next.Array()
			if seg.index >= len(items) {
				return gjson.Result{}, false
			}
			next = items[seg.index]
		}

		current = next
	}

	if !current.Exists() || current.Type == gjson.Null {
		return gjson.Result{}, false
	}
	return current, true
}

// Lookup parses raw JSON and extracts path from it.
// Invalid JSON resolves to absent.
func Lookup(raw []byte, path string) (gjson.Result, bool) {
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, false
	}
	return Extract(gjson.ParseBytes(raw), path)
}

// Value converts r to a plain Go value: string, int64 for integral numbers,
// float64 for other numbers, bool, map[string]any or []any. Absent and null
// values convert to nil.
func Value(r gjson.Result) any {
	switch r.Type {
	case gjson.Null:
		return nil
	case gjson.String:
		return r.Str
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.Number:
		if isIntegral(r.Raw) {
			if n, err := strconv.ParseInt(r.Raw, 10, 64); err == nil {
				return n
			}
		}
		return r.Num
	default:
		return r.Value()
	}
}

// Has reports whether path resolves to a present value in doc.
func Has(doc gjson.Result, path string) bool {
	_, ok := Extract(doc, path)
	return ok
}

// Count returns the length of the array at path, or zero when the path is
// absent or not an array.
func Count(doc gjson.Result, path string) int {
	r, ok := Extract(doc, path)
	if !ok || !r.IsArray() {
		return 0
	}
	return len(r.Array())
}

// field finds an exact key in obj. gjson path syntax is not used here
// because vendor keys are matched literally.
func field(obj gjson.Result, name string) (gjson.Result, bool) {
	var (
		found gjson.Result
		ok    bool
	)
	obj.ForEach(func(key, value gjson.Result) bool {
		if key.Str == name {
			found, ok = value, true
			return false
		}
		return true
	})
	return found, ok
}

func isIntegral(raw string) bool {
	return raw != "" && !strings.ContainsAny(raw, ".eE")
}
