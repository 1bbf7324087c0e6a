/*
Copyright © 2019 the WRFRun authors.
This file is part of WRFRun.

WRFRun is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

WRFRun is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with WRFRun.  If not, see <http://www.gnu.org/licenses/>.
*/

package wrfrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wrfrun/wrfrun/internal/fileutil"
)

// gribServer serves "grib:" followed by the request path and counts
// requests. Requests for paths in fail receive a 500 status.
type gribServer struct {
	*httptest.Server
	requests int64
	failures int64 // number of leading requests to fail
	fail     map[string]bool
	hook     func(r *http.Request)
}

func newGribServer(t *testing.T) *gribServer {
	s := &gribServer{fail: make(map[string]bool)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&s.requests, 1)
		if s.hook != nil {
			s.hook(r)
		}
		if n <= atomic.LoadInt64(&s.failures) || s.fail[r.URL.Path] {
			http.Error(w, "unavailable", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "grib:%s", r.URL.Path)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *gribServer) count() int64 { return atomic.LoadInt64(&s.requests) }

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

// dirCache is a SecondaryCache backed by a local directory.
type dirCache struct {
	dir  string
	puts int64
}

func (c *dirCache) Get(ctx context.Context, name, dst string) error {
	src := filepath.Join(c.dir, name)
	if !fileutil.NonEmpty(src) {
		return ErrNotCached
	}
	return fileutil.CopyFile(src, dst)
}

func (c *dirCache) Put(ctx context.Context, name, src string) error {
	atomic.AddInt64(&c.puts, 1)
	return fileutil.CopyFile(src, filepath.Join(c.dir, name))
}

func TestFetchSkipOnExists(t *testing.T) {
	srv := newGribServer(t)
	dir := t.TempDir()
	item := WorkItem{RemoteLocator: srv.URL + "/f000", LocalPath: filepath.Join(dir, "sub", "20190820.f000")}
	f := &Fetcher{Log: testLogger()}

	o := f.Fetch(context.Background(), item)
	if o.Status != FetchedFromOrigin || o.Attempts != 1 || o.Err != nil {
		t.Fatalf("first fetch: %+v", o)
	}
	b, err := os.ReadFile(item.LocalPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "grib:/f000" {
		t.Errorf("content %q", b)
	}

	o = f.Fetch(context.Background(), item)
	if o.Status != Skipped {
		t.Errorf("second fetch: %+v", o)
	}
	if srv.count() != 1 {
		t.Errorf("%d requests, want 1", srv.count())
	}

	f.Overwrite = true
	if o = f.Fetch(context.Background(), item); o.Status != FetchedFromOrigin {
		t.Errorf("overwrite fetch: %+v", o)
	}
	if srv.count() != 2 {
		t.Errorf("%d requests, want 2", srv.count())
	}
}

func TestFetchReplacesEmptyFile(t *testing.T) {
	srv := newGribServer(t)
	dst := filepath.Join(t.TempDir(), "f003")
	if err := os.WriteFile(dst, nil, 0644); err != nil {
		t.Fatal(err)
	}
	f := &Fetcher{Log: testLogger()}
	o := f.Fetch(context.Background(), WorkItem{RemoteLocator: srv.URL + "/f003", LocalPath: dst})
	if o.Status != FetchedFromOrigin {
		t.Fatalf("%+v", o)
	}
	if !fileutil.NonEmpty(dst) {
		t.Error("destination is still empty")
	}
}

func TestFetchCacheShortCircuit(t *testing.T) {
	srv := newGribServer(t)
	cache := &dirCache{dir: t.TempDir()}
	cached := []byte("cached grib data")
	if err := os.WriteFile(filepath.Join(cache.dir, "20190820.f006"), cached, 0644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(t.TempDir(), "20190820.f006")
	f := &Fetcher{Cache: cache, Log: testLogger()}

	o := f.Fetch(context.Background(), WorkItem{RemoteLocator: srv.URL + "/f006", LocalPath: dst})
	if o.Status != FetchedFromCache {
		t.Fatalf("%+v", o)
	}
	if srv.count() != 0 {
		t.Errorf("%d origin requests, want 0", srv.count())
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, cached) {
		t.Errorf("destination %q != cache %q", b, cached)
	}
}

func TestFetchCacheMiss(t *testing.T) {
	srv := newGribServer(t)
	cache := &dirCache{dir: t.TempDir()}
	// An empty cache entry counts as a miss.
	if err := os.WriteFile(filepath.Join(cache.dir, "20190820.f009"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(t.TempDir(), "20190820.f009")
	f := &Fetcher{Cache: cache, Log: testLogger()}

	o := f.Fetch(context.Background(), WorkItem{RemoteLocator: srv.URL + "/f009", LocalPath: dst})
	if o.Status != FetchedFromOrigin {
		t.Fatalf("%+v", o)
	}
	if srv.count() != 1 || cache.puts != 1 {
		t.Errorf("%d requests and %d cache stores", srv.count(), cache.puts)
	}
	b, err := os.ReadFile(filepath.Join(cache.dir, "20190820.f009"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "grib:/f009" {
		t.Errorf("cache content %q", b)
	}

	// The next fetch is served by the cache even though the
	// destination already exists.
	if o = f.Fetch(context.Background(), WorkItem{RemoteLocator: srv.URL + "/f009", LocalPath: dst}); o.Status != FetchedFromCache {
		t.Errorf("%+v", o)
	}
}

type failingCache struct{ dirCache }

func (c *failingCache) Put(ctx context.Context, name, src string) error {
	return errors.New("bucket is read-only")
}

func TestFetchCacheStoreFailure(t *testing.T) {
	srv := newGribServer(t)
	cache := &failingCache{dirCache{dir: t.TempDir()}}
	dst := filepath.Join(t.TempDir(), "f012")
	f := &Fetcher{Cache: cache, Retries: 3, Log: testLogger()}
	o := f.Fetch(context.Background(), WorkItem{RemoteLocator: srv.URL + "/f012", LocalPath: dst})
	if o.Status != Failed || o.Attempts != 1 {
		t.Errorf("%+v", o)
	}
}

func TestFetchRetryExhaustion(t *testing.T) {
	srv := newGribServer(t)
	srv.fail["/f000"] = true
	const delay = 20 * time.Millisecond
	f := &Fetcher{Retries: 2, Delay: delay, Log: testLogger()}
	dst := filepath.Join(t.TempDir(), "f000")

	start := time.Now()
	o := f.Fetch(context.Background(), WorkItem{RemoteLocator: srv.URL + "/f000", LocalPath: dst})
	elapsed := time.Since(start)

	if o.Status != Failed {
		t.Fatalf("%+v", o)
	}
	if o.Attempts != 3 || srv.count() != 3 {
		t.Errorf("%d attempts and %d requests, want 3", o.Attempts, srv.count())
	}
	if elapsed < 2*delay {
		t.Errorf("finished in %v; expected two waits of %v", elapsed, delay)
	}
	var terr *TransientFetchError
	if !errors.As(o.Err, &terr) {
		t.Fatalf("expected *TransientFetchError, got %v", o.Err)
	}
	if terr.StatusCode != http.StatusInternalServerError {
		t.Errorf("status %d", terr.StatusCode)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("failed fetch left a destination file")
	}
}

func TestFetchNoRetries(t *testing.T) {
	srv := newGribServer(t)
	srv.fail["/f000"] = true
	f := &Fetcher{Log: testLogger()}
	o := f.Fetch(context.Background(), WorkItem{RemoteLocator: srv.URL + "/f000", LocalPath: filepath.Join(t.TempDir(), "f000")})
	if o.Status != Failed || o.Attempts != 1 {
		t.Errorf("%+v", o)
	}
}

func TestFetchRecovers(t *testing.T) {
	srv := newGribServer(t)
	srv.failures = 2
	f := &Fetcher{Retries: 2, Delay: time.Millisecond, Log: testLogger()}
	o := f.Fetch(context.Background(), WorkItem{RemoteLocator: srv.URL + "/f000", LocalPath: filepath.Join(t.TempDir(), "f000")})
	if o.Status != FetchedFromOrigin || o.Attempts != 3 {
		t.Errorf("%+v", o)
	}
}

func TestFetchConcurrentWriter(t *testing.T) {
	srv := newGribServer(t)
	dst := filepath.Join(t.TempDir(), "f000")
	// Another worker finishes the same file while this download is
	// in flight.
	srv.hook = func(r *http.Request) {
		os.WriteFile(dst, []byte("written elsewhere"), 0644)
	}
	f := &Fetcher{Log: testLogger()}
	o := f.Fetch(context.Background(), WorkItem{RemoteLocator: srv.URL + "/f000", LocalPath: dst})
	if o.Status != Skipped || o.Err != nil {
		t.Errorf("%+v", o)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "written elsewhere" {
		t.Errorf("content was replaced: %q", b)
	}
	tmp, _ := filepath.Glob(filepath.Join(filepath.Dir(dst), ".*.part"))
	if len(tmp) != 0 {
		t.Errorf("temporary files left behind: %v", tmp)
	}
}

func TestFetchLocalFailureNotRetried(t *testing.T) {
	srv := newGribServer(t)
	dir := t.TempDir()
	blocker := filepath.Join(dir, "notadir")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	f := &Fetcher{Retries: 5, Delay: time.Second, Log: testLogger()}
	o := f.Fetch(context.Background(), WorkItem{RemoteLocator: srv.URL + "/f000", LocalPath: filepath.Join(blocker, "f000")})
	if o.Status != Failed || o.Attempts != 1 {
		t.Errorf("%+v", o)
	}
	if srv.count() != 0 {
		t.Errorf("%d requests", srv.count())
	}
}

func TestFetchCanceled(t *testing.T) {
	srv := newGribServer(t)
	srv.fail["/f000"] = true
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &Fetcher{Retries: 10, Delay: time.Hour, Log: testLogger()}
	o := f.Fetch(ctx, WorkItem{RemoteLocator: srv.URL + "/f000", LocalPath: filepath.Join(t.TempDir(), "f000")})
	if o.Status != Failed || o.Attempts != 1 {
		t.Errorf("%+v", o)
	}
}

func TestFetchNegativeRetries(t *testing.T) {
	srv := newGribServer(t)
	srv.fail["/f000"] = true
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f := &Fetcher{Retries: -1, Delay: time.Millisecond, Log: testLogger()}
	o := f.Fetch(ctx, WorkItem{RemoteLocator: srv.URL + "/f000", LocalPath: filepath.Join(t.TempDir(), "f000")})
	if o.Status != Failed || o.Attempts != 1 || srv.count() != 1 {
		t.Errorf("%+v after %d requests", o, srv.count())
	}
	var terr *TransientFetchError
	if !errors.As(o.Err, &terr) {
		t.Errorf("expected *TransientFetchError, got %v", o.Err)
	}
}

func TestFetchCanceledKeepsOriginError(t *testing.T) {
	srv := newGribServer(t)
	srv.fail["/f000"] = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Cancel while waiting for the second attempt.
	time.AfterFunc(50*time.Millisecond, cancel)
	f := &Fetcher{Retries: 10, Delay: time.Hour, Log: testLogger()}
	o := f.Fetch(ctx, WorkItem{RemoteLocator: srv.URL + "/f000", LocalPath: filepath.Join(t.TempDir(), "f000")})
	if o.Status != Failed || o.Attempts != 1 {
		t.Fatalf("%+v", o)
	}
	if !errors.Is(o.Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", o.Err)
	}
	var terr *TransientFetchError
	if !errors.As(o.Err, &terr) || terr.StatusCode != http.StatusInternalServerError {
		t.Errorf("origin failure lost: %v", o.Err)
	}
}

func TestFetchStatusString(t *testing.T) {
	for s, want := range map[FetchStatus]string{
		Failed: "failed", Skipped: "skipped", FetchedFromCache: "cache", FetchedFromOrigin: "origin",
	} {
		if s.String() != want {
			t.Errorf("%d: %s != %s", int(s), s, want)
		}
	}
}
