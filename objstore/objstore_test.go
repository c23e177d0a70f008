package objstore

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/VanDung-dev/colblob/host"
	"github.com/VanDung-dev/colblob/hostvalue"
	"github.com/VanDung-dev/colblob/internal/fixture"
	"github.com/VanDung-dev/colblob/source"
	"github.com/VanDung-dev/colblob/surface"
)

// fakeS3 serves objects by path with ranges, HEAD and If-Match.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	etags   map[string]string
	gets    int
}

func newFakeS3(t *testing.T) (*fakeS3, *Store) {
	t.Helper()

	fs := &fakeS3{objects: make(map[string][]byte), etags: make(map[string]string)}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.Endpoint = strings.TrimPrefix(srv.URL, "http://")
	cfg.AccessKey = "test"
	cfg.SecretKey = "testtest"
	cfg.ReadTimeout = 5 * time.Second
	store, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return fs, store
}

func (f *fakeS3) put(key string, data []byte, etag string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects["/colblob/"+key] = data
	f.etags["/colblob/"+key] = etag
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	data, ok := f.objects[r.URL.Path]
	etag := f.etags[r.URL.Path]
	if r.Method == http.MethodGet {
		f.gets++
	}
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("ETag", `"`+etag+`"`)
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, "", time.Unix(1700000000, 0), bytes.NewReader(data))
}

func TestOpenAndReadRange(t *testing.T) {
	fs, store := newFakeS3(t)
	data := []byte("the quick brown fox jumps over the lazy dog")
	fs.put("fox.txt", data, "v1")

	loop := host.NewLoop("objstore", nil)
	defer loop.Shutdown()

	blob, err := store.Open(context.Background(), loop, "fox.txt")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if blob.Size() != uint64(len(data)) {
		t.Errorf("Expected size %d, got %d", len(data), blob.Size())
	}
	if blob.ETag() != "v1" {
		t.Errorf("Expected etag v1, got %s", blob.ETag())
	}

	src := source.NewByteSource(blob, nil)
	got, err := src.ReadByteRange(4, 11).Await(context.Background())
	if err != nil {
		t.Fatalf("ReadByteRange failed: %v", err)
	}
	if string(got) != "quick brown" {
		t.Errorf("Expected 'quick brown', got %q", got)
	}
}

func TestOpenMissingObject(t *testing.T) {
	_, store := newFakeS3(t)
	loop := host.NewLoop("objstore", nil)
	defer loop.Shutdown()

	if _, err := store.Open(context.Background(), loop, "missing"); err == nil {
		t.Error("Expected error opening a missing object")
	}
}

func TestReplacedObjectFailsReads(t *testing.T) {
	fs, store := newFakeS3(t)
	fs.put("data.bin", bytes.Repeat([]byte{1}, 64), "v1")

	loop := host.NewLoop("objstore", nil)
	defer loop.Shutdown()

	blob, err := store.Open(context.Background(), loop, "data.bin")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	fs.put("data.bin", bytes.Repeat([]byte{2}, 64), "v2")

	_, err = source.NewByteSource(blob, nil).ReadByteRange(0, 8).Await(context.Background())
	if !errors.Is(err, source.ErrIO) {
		t.Errorf("Expected ErrIO after the object changed, got %v", err)
	}
}

func TestObjectContainerEndToEnd(t *testing.T) {
	fs, store := newFakeS3(t)
	events := fixture.Events(80)
	data, err := fixture.WriteIPC(events, 30)
	if err != nil {
		t.Fatalf("WriteIPC failed: %v", err)
	}
	fs.put("events.arrow", data, "abc123")

	loop := host.NewLoop("objstore", nil)
	defer loop.Shutdown()

	ctx := context.Background()
	blob, err := store.Open(ctx, loop, "events.arrow")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	f, err := surface.FromContainer(ctx, blob, nil)
	if err != nil {
		t.Fatalf("FromContainer failed: %v", err)
	}
	arr, err := f.Materialize(ctx)
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	defer arr.Release()

	if arr.Len() != 80 {
		t.Fatalf("Expected 80 elements, got %d", arr.Len())
	}
	v, err := arr.Get(79)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	id, _ := v.(*hostvalue.Object).Get("entity_id")
	if !hostvalue.Equal(id, hostvalue.String(events[79].EntityID)) {
		t.Errorf("Expected %s, got %v", events[79].EntityID, id)
	}

	fs.mu.Lock()
	gets := fs.gets
	fs.mu.Unlock()
	if gets < 2 {
		t.Errorf("Expected several ranged GETs, got %d", gets)
	}
}

func TestSliceBounds(t *testing.T) {
	blob := &ObjectBlob{end: 10}
	if _, err := blob.Slice(3, 11); !errors.Is(err, host.ErrInvalidSlice) {
		t.Errorf("Expected ErrInvalidSlice, got %v", err)
	}
	sub, err := blob.Slice(3, 7)
	if err != nil {
		t.Fatalf("Slice failed: %v", err)
	}
	inner, err := sub.(*ObjectBlob).Slice(1, 2)
	if err != nil {
		t.Fatalf("Slice failed: %v", err)
	}
	ob := inner.(*ObjectBlob)
	if ob.start != 4 || ob.end != 5 {
		t.Errorf("Expected [4, 5), got [%d, %d)", ob.start, ob.end)
	}
}
