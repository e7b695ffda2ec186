package jsonpath

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tidwall/gjson"
)

const hardwareDoc = `{
	"code": 200,
	"data": {
		"hardware": {
			"cpu": [{"model": "X", "core": 4, "ghz": 2.5}],
			"mem": [{"size": 8589934592}, {"size": null}],
			"usb": []
		},
		"common": {"nas_name": "nas", "flag": true}
	}
}`

func TestExtract(t *testing.T) {
	doc := gjson.Parse(hardwareDoc)

	tests := []struct {
		name   string
		path   string
		want   any
		wantOK bool
	}{
		{"nested string", "data.hardware.cpu[0].model", "X", true},
		{"integer", "data.hardware.cpu[0].core", int64(4), true},
		{"float", "data.hardware.cpu[0].ghz", 2.5, true},
		{"large integer", "data.hardware.mem[0].size", int64(8589934592), true},
		{"bool", "data.common.flag", true, true},
		{"top level", "code", int64(200), true},

		// absent cases
		{"null leaf", "data.hardware.mem[1].size", nil, false},
		{"missing field", "data.hardware.gpu", nil, false},
		{"index out of range", "data.hardware.cpu[1].model", nil, false},
		{"index into empty", "data.hardware.usb[0].model", nil, false},
		{"index into object", "data.common[0]", nil, false},
		{"negative index", "data.hardware.cpu[-1].model", nil, false},
		{"non-integer index", "data.hardware.cpu[a].model", nil, false},
		{"empty index", "data.hardware.cpu[].model", nil, false},
		{"walk into string", "data.common.nas_name.length", nil, false},
		{"walk into array without index", "data.hardware.cpu.model", nil, false},
		{"empty path", "", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(doc, tt.path)
			if ok != tt.wantOK {
				t.Fatalf("Extract(%q) ok = %v, want %v", tt.path, ok, tt.wantOK)
			}
			if diff := cmp.Diff(tt.want, Value(got)); diff != "" {
				t.Errorf("Extract(%q) mismatch (-want +got):\n%s", tt.path, diff)
			}
		})
	}
}

func TestExtract_EmptyDocument(t *testing.T) {
	got, ok := Extract(gjson.Parse(`{}`), "a.b[0].c")
	if ok {
		t.Errorf("Extract({}) ok = true, want false")
	}
	if Value(got) != nil {
		t.Errorf("Extract({}) = %v, want nil", Value(got))
	}
}

func TestExtract_NonObjectRoots(t *testing.T) {
	roots := []string{`[]`, `"text"`, `42`, `null`, ``, `not json`}
	for _, root := range roots {
		if _, ok := Extract(gjson.Parse(root), "data.x"); ok {
			t.Errorf("Extract(%q) ok = true, want false", root)
		}
	}
}

func TestLookup(t *testing.T) {
	got, ok := Lookup([]byte(hardwareDoc), "data.hardware.cpu[0].model")
	if !ok || got.String() != "X" {
		t.Errorf("Lookup() = %v, %v, want X, true", got, ok)
	}

	if _, ok := Lookup([]byte(`{"data":`), "data"); ok {
		t.Error("Lookup() on truncated JSON ok = true, want false")
	}
}

func TestCount(t *testing.T) {
	doc := gjson.Parse(hardwareDoc)

	tests := []struct {
		path string
		want int
	}{
		{"data.hardware.mem", 2},
		{"data.hardware.cpu", 1},
		{"data.hardware.usb", 0},
		{"data.hardware.net", 0},
		{"data.common", 0},
	}

	for _, tt := range tests {
		if got := Count(doc, tt.path); got != tt.want {
			t.Errorf("Count(%q) = %d, want %d", tt.path, got, tt.want)
		}
	}
}

func TestHas(t *testing.T) {
	doc := gjson.Parse(hardwareDoc)
	if !Has(doc, "data.common.nas_name") {
		t.Error("Has(nas_name) = false, want true")
	}
	if Has(doc, "data.hardware.mem[1].size") {
		t.Error("Has(null) = true, want false")
	}
}

func TestValue_Containers(t *testing.T) {
	doc := gjson.Parse(`{"obj":{"a":1},"arr":[1,"x"]}`)

	obj, _ := Extract(doc, "obj")
	if diff := cmp.Diff(map[string]any{"a": float64(1)}, Value(obj)); diff != "" {
		t.Errorf("Value(obj) mismatch (-want +got):\n%s", diff)
	}

	arr, _ := Extract(doc, "arr")
	if diff := cmp.Diff([]any{float64(1), "x"}, Value(arr)); diff != "" {
		t.Errorf("Value(arr) mismatch (-want +got):\n%s", diff)
	}
}
