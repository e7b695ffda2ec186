package nasapi

import (
	"github.com/tidwall/gjson"

	"github.com/jpalmerr/nasbridge/internal/jsonpath"
)

// Document is a decoded vendor API response. The zero value is the empty
// document returned for every failure.
type Document struct {
	raw  []byte
	root gjson.Result
}

// NewDocument wraps raw JSON. Invalid JSON yields an empty document.
func NewDocument(raw []byte) Document {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return Document{}
	}
	return Document{raw: raw, root: gjson.ParseBytes(raw)}
}

// Empty reports whether the document carries no data.
func (d Document) Empty() bool {
	return len(d.raw) == 0 || !d.root.IsObject() || len(d.root.Map()) == 0
}

// Code returns the vendor status code, or 0 when absent.
func (d Document) Code() int64 {
	return d.root.Get("code").Int()
}

// Get evaluates a dotted/indexed path against the document.
func (d Document) Get(path string) (gjson.Result, bool) {
	if d.Empty() {
		return gjson.Result{}, false
	}
	return jsonpath.Extract(d.root, path)
}

// Root returns the parsed top-level value.
func (d Document) Root() gjson.Result {
	return d.root
}

// Raw returns the original bytes.
func (d Document) Raw() []byte {
	return d.raw
}
