package collector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tidwall/sjson"

	"github.com/jpalmerr/nasbridge/internal/catalog"
	"github.com/jpalmerr/nasbridge/internal/nasapi"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeNAS struct {
	mu    sync.Mutex
	docs  map[string]string
	fail  map[string]bool
	calls map[string]int
}

func newFakeNAS(docs map[string]string) *fakeNAS {
	return &fakeNAS{docs: docs, fail: map[string]bool{}, calls: map[string]int{}}
}

func (f *fakeNAS) Get(_ context.Context, endpoint string) nasapi.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[endpoint]++
	if f.fail[endpoint] {
		return nasapi.Response{StatusCode: 502, Err: errors.New("bad gateway")}
	}
	raw, ok := f.docs[endpoint]
	if !ok {
		return nasapi.Response{StatusCode: 404, Err: errors.New("not found")}
	}
	return nasapi.Response{Doc: nasapi.NewDocument([]byte(raw)), StatusCode: 200}
}

func (f *fakeNAS) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func mustSet(t *testing.T, doc string, kv ...any) string {
	t.Helper()
	var err error
	for i := 0; i < len(kv); i += 2 {
		doc, err = sjson.Set(doc, kv[i].(string), kv[i+1])
		if err != nil {
			t.Fatalf("sjson.Set(%v): %v", kv[i], err)
		}
	}
	return doc
}

func pathSensor(key, unit, endpoint, path string, decimals int) catalog.Descriptor {
	return catalog.Descriptor{
		Key:      key,
		Name:     key,
		Unit:     unit,
		Endpoint: endpoint,
		Source:   catalog.Path(path),
		Decimals: decimals,
		Kind:     catalog.Sensor,
	}
}

func TestUpdate_OneFetchPerEndpoint(t *testing.T) {
	api := newFakeNAS(map[string]string{
		"/a": `{"code":200,"data":{"x":1,"y":"two","z":3.14159}}`,
		"/b": `{"code":200,"data":{"w":"4"}}`,
	})
	c := New(api, WithLogger(testLogger()), WithMaxConcurrency(2))

	ds := []catalog.Descriptor{
		pathSensor("x", "", "/a", "data.x", 2),
		pathSensor("w", "", "/b", "data.w", 2),
		pathSensor("y", "", "/a", "data.y", 2),
		pathSensor("z", "", "/a", "data.z", 2),
	}

	got := c.Update(context.Background(), ds)

	want := Result{
		"x": {Raw: int64(1), Value: int64(1)},
		"y": {Raw: "two", Value: "two"},
		"z": {Raw: 3.14159, Value: 3.14159},
		"w": {Raw: "4", Value: int64(4)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Update() mismatch (-want +got):\n%s", diff)
	}
	if api.calls["/a"] != 1 || api.calls["/b"] != 1 {
		t.Errorf("calls = %v, want one per endpoint", api.calls)
	}
}

func TestUpdate_FailedEndpointNullsItsGroup(t *testing.T) {
	api := newFakeNAS(map[string]string{
		"/ok":    `{"code":200,"data":{"v":10}}`,
		"/empty": `{}`,
	})
	api.fail["/down"] = true
	c := New(api, WithLogger(testLogger()))

	ds := []catalog.Descriptor{
		pathSensor("ok", "", "/ok", "data.v", 0),
		pathSensor("down1", "%", "/down", "data.a", 0),
		pathSensor("down2", "", "/down", "data.b", 0),
		pathSensor("empty", "", "/empty", "data.c", 0),
	}

	got := c.Update(context.Background(), ds)

	want := Result{
		"ok":    {Raw: int64(10), Value: int64(10)},
		"down1": {Unit: "%"},
		"down2": {},
		"empty": {},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Update() mismatch (-want +got):\n%s", diff)
	}
	if n := got.Nulls(); n != 3 {
		t.Errorf("Nulls() = %d, want 3", n)
	}
}

func TestUpdate_AbsentPathIsNull(t *testing.T) {
	api := newFakeNAS(map[string]string{
		"/a": `{"code":200,"data":{"list":[{"v":1}],"nothing":null}}`,
	})
	c := New(api, WithLogger(testLogger()))

	tests := []struct {
		name string
		path string
		unit string
	}{
		{"missing field", "data.absent", ""},
		{"index out of range", "data.list[3].v", ""},
		// a percentage would otherwise format a missing value as 0
		{"missing percentage", "data.absent", "%"},
		{"explicit null", "data.nothing", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Update(context.Background(), []catalog.Descriptor{pathSensor("k", tt.unit, "/a", tt.path, 2)})
			if !got["k"].Null() {
				t.Errorf("reading = %+v, want null", got["k"])
			}
		})
	}
}

func TestUpdate_Formatting(t *testing.T) {
	api := newFakeNAS(map[string]string{
		"/a": `{"code":200,"data":{"size":17179869184,"pct":42.46,"temp":48.6,"status":2}}`,
	})
	c := New(api, WithLogger(testLogger()))

	ds := []catalog.Descriptor{
		pathSensor("ram_size", "B", "/a", "data.size", 0),
		pathSensor("usage", "%", "/a", "data.pct", 0),
		pathSensor("cpu_temperature", "°C", "/a", "data.temp", 0),
		pathSensor("server_status", "", "/a", "data.status", 0),
	}

	got := c.Update(context.Background(), ds)

	want := Result{
		"ram_size":        {Raw: int64(17179869184), Value: int64(16), Unit: "GB"},
		"usage":           {Raw: 42.46, Value: 42.5, Unit: "%"},
		"cpu_temperature": {Raw: 48.6, Value: int64(49), Unit: "°C"},
		"server_status":   {Raw: int64(2), Value: "Normal"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Update() mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate_DerivedSum(t *testing.T) {
	doc := mustSet(t, `{"code":200}`,
		"data.hardware.mem", []map[string]any{
			{"size": 8589934592},
			{"size": 8589934592},
			{"model": "no size"},
		},
	)
	api := newFakeNAS(map[string]string{"/common": doc})
	c := New(api, WithLogger(testLogger()))

	total := pathSensor("ram_total_size", "B", "/common", "", 0)
	total.Source = catalog.Sum("ram1_size", "ram2_size", "ram3_size")

	// unused is only referenced by a derived descriptor, so it is never fetched
	unused := pathSensor("none_total", "B", "/unused", "", 0)
	unused.Source = catalog.Sum("ram3_size")

	ds := []catalog.Descriptor{
		total,
		unused,
		pathSensor("ram1_size", "B", "/common", "data.hardware.mem[0].size", 0),
		pathSensor("ram2_size", "B", "/common", "data.hardware.mem[1].size", 0),
		pathSensor("ram3_size", "B", "/common", "data.hardware.mem[2].size", 0),
	}

	got := c.Update(context.Background(), ds)

	if diff := cmp.Diff(Reading{Raw: int64(17179869184), Value: int64(16), Unit: "GB"}, got["ram_total_size"]); diff != "" {
		t.Errorf("ram_total_size mismatch (-want +got):\n%s", diff)
	}
	if !got["none_total"].Null() {
		t.Errorf("none_total = %+v, want null", got["none_total"])
	}
	if api.calls["/unused"] != 0 {
		t.Errorf("derived-only endpoint fetched %d times", api.calls["/unused"])
	}
}

func TestUpdate_DerivedRateScale(t *testing.T) {
	api := newFakeNAS(map[string]string{
		"/stats": `{"code":200,"data":{"net":{"series":[{"send_rate":331816960,"recv_rate":512}]}}}`,
	})
	c := New(api, WithLogger(testLogger()))

	ds := catalog.StaticStatus()
	got := c.Update(context.Background(), rewrite(ds, "/stats"))

	tests := []struct {
		key  string
		want Reading
	}{
		{"overall_lan_upload_raw", Reading{Raw: int64(331816960), Value: int64(331816960), Unit: "B/s"}},
		{"overall_lan_upload", Reading{Raw: int64(331816960), Value: "316 MB/s"}},
		{"overall_lan_download", Reading{Raw: int64(512), Value: "512 B/s"}},
		{"overall_disk_read_rate_raw", Reading{Unit: "B/s"}},
		{"overall_disk_read_rate", Reading{}},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, got[tt.key]); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
	if api.totalCalls() != 1 {
		t.Errorf("fetches = %d, want 1", api.totalCalls())
	}
}

func TestUpdate_ButtonsIgnored(t *testing.T) {
	api := newFakeNAS(nil)
	c := New(api, WithLogger(testLogger()))

	got := c.Update(context.Background(), catalog.Buttons())
	if len(got) != 0 {
		t.Errorf("Update() = %v, want empty", got)
	}
	if api.totalCalls() != 0 {
		t.Errorf("fetches = %d, want 0", api.totalCalls())
	}
}

func TestUpdate_NoDescriptors(t *testing.T) {
	api := newFakeNAS(nil)
	c := New(api, WithLogger(testLogger()))

	if got := c.Update(context.Background(), nil); len(got) != 0 {
		t.Errorf("Update(nil) = %v, want empty", got)
	}
}

func TestUpdate_EveryKeyPresent(t *testing.T) {
	api := newFakeNAS(nil)
	c := New(api, WithLogger(testLogger()), WithMaxConcurrency(0))

	ds := append(catalog.StaticConfiguration(), catalog.StaticStatus()...)
	got := c.Update(context.Background(), ds)

	if len(got) != len(ds) {
		t.Fatalf("len(result) = %d, want %d", len(got), len(ds))
	}
	if got.Nulls() != len(ds) {
		t.Errorf("Nulls() = %d, want all %d", got.Nulls(), len(ds))
	}
}

func TestResult_Merge(t *testing.T) {
	r := Result{"a": {Value: 1}, "b": {Value: 2}}
	r.Merge(Result{"b": {Value: 3}, "c": {}})

	want := Result{"a": {Value: 1}, "b": {Value: 3}, "c": {}}
	if diff := cmp.Diff(want, r); diff != "" {
		t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
	}
}

// rewrite points every descriptor at endpoint.
func rewrite(ds []catalog.Descriptor, endpoint string) []catalog.Descriptor {
	out := make([]catalog.Descriptor, len(ds))
	for i, d := range ds {
		d.Endpoint = endpoint
		out[i] = d
	}
	return out
}
