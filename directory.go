package siesta

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/aofei/mimesniffer"
	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
)

// directoryMount is C4: a subtree handler serving files from a filesystem
// path (spec §4.4). Content is cached in memory so repeated requests for
// the same file don't repeatedly hit disk; the cache is invalidated by a
// filesystem watcher the moment the underlying file changes.
type directoryMount struct {
	uriPrefix string
	fsRoot    string

	cache   *fastcache.Cache
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	watched map[string]bool
}

// defaultDirectoryCacheBytes bounds the in-memory cache used for directory
// mounts, matching the order of magnitude of the teacher's own asset cache.
const defaultDirectoryCacheBytes = 32 * 1024 * 1024

func newDirectoryMount(uriPrefix, fsRoot string) (*directoryMount, error) {
	root, err := filepath.Abs(fsRoot)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	d := &directoryMount{
		uriPrefix: uriPrefix,
		fsRoot:    root,
		cache:     fastcache.New(defaultDirectoryCacheBytes),
		watcher:   watcher,
		watched:   map[string]bool{},
	}

	go d.invalidateOnChange()

	return d, nil
}

func (d *directoryMount) invalidateOnChange() {
	for {
		select {
		case e, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			d.cache.Del([]byte(e.Name))
		case _, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// close stops the mount's filesystem watcher (spec §4.4, "token drop
// removes the mount").
func (d *directoryMount) close() {
	d.watcher.Close()
}

// ServeHTTP maps the tail of the request URI onto fsRoot/... and returns
// the file's contents with a sniffed content type and a content-hash ETag
// (spec §4.4, §9 "Content negotiation for directory mounts"). Any attempt
// to traverse outside fsRoot is reported as 404, never surfaced as the
// underlying OS path.
func (d *directoryMount) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tail := strings.TrimPrefix(r.URL.Path, d.uriPrefix)
	full := filepath.Join(d.fsRoot, filepath.Clean("/"+tail))
	if !strings.HasPrefix(full, d.fsRoot) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	data, ok := d.cache.HasGet(nil, []byte(full))
	if !ok {
		b, err := os.ReadFile(full)
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		data = b
		d.cache.Set([]byte(full), data)
		d.watchOnce(full)
	}

	etag := strconv.FormatUint(xxhash.Sum64(data), 16)
	if inm := r.Header.Get("If-None-Match"); inm == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", mimesniffer.Sniff(data))
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.Write(data)
}

func (d *directoryMount) watchOnce(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.watched[path] {
		return
	}
	if d.watcher.Add(path) == nil {
		d.watched[path] = true
	}
}
