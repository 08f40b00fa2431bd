package mirror

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"git.handmade.network/hmn/edu/src/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// An in-memory stand-in for the few S3 calls the mirror makes, with
// path-style addressing.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		buckets: map[string]map[string][]byte{},
		types:   map[string]string{},
	}
}

type listResult struct {
	XMLName     xml.Name `xml:"ListBucketResult"`
	Name        string
	Prefix      string
	KeyCount    int
	IsTruncated bool
	Contents    []listEntry
}

type listEntry struct {
	Key  string
	Size int
}

func bucketKey(r *http.Request) (string, string) {
	p := r.URL.Path[1:]
	slashIdx := strings.IndexByte(p, '/')
	if slashIdx == -1 {
		return p, ""
	}
	return p[:slashIdx], p[slashIdx+1:]
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bucketName, key := bucketKey(r)
	body, _ := io.ReadAll(r.Body)
	bucket, ok := f.buckets[bucketName]

	if key == "" && r.Method == http.MethodPut {
		if !ok {
			f.buckets[bucketName] = map[string][]byte{}
		}
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchBucket</Code><Message>The specified bucket does not exist</Message></Error>`)
		return
	}

	switch r.Method {
	case http.MethodGet:
		prefix := r.URL.Query().Get("prefix")
		res := listResult{Name: bucketName, Prefix: prefix}
		for k, v := range bucket {
			if strings.HasPrefix(k, prefix) {
				res.Contents = append(res.Contents, listEntry{Key: k, Size: len(v)})
			}
		}
		sort.Slice(res.Contents, func(i, j int) bool { return res.Contents[i].Key < res.Contents[j].Key })
		res.KeyCount = len(res.Contents)
		w.Header().Set("Content-Type", "application/xml")
		xml.NewEncoder(w).Encode(res)
	case http.MethodPut:
		bucket[key] = body
		f.types[key] = r.Header.Get("Content-Type")
	case http.MethodDelete:
		delete(bucket, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) keys(bucket string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.buckets[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeS3) object(bucket, key string) ([]byte, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buckets[bucket][key], f.types[key]
}

func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		filename := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(filename), 0755))
		require.NoError(t, os.WriteFile(filename, []byte(content), 0644))
	}
}

func TestS3Mirror(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	m, err := New(ctx, config.MirrorConfig{
		Endpoint: srv.URL,
		Region:   "fr-par",
		Bucket:   "public",
		Key:      "key",
		Secret:   "secret",
	})
	require.NoError(t, err)

	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"mon-tuto/introduction.html":          "<p>intro</p>",
		"mon-tuto/partie/chapitre.html":       "<p>chapitre</p>",
		"mon-tuto/extra_contents/mon-tuto.md": "# md",
		"mon-tuto/manifest.json":              "{}",
		"autre/autre.html":                    "<p>autre</p>",
	})

	t.Run("creates the bucket and uploads every file", func(t *testing.T) {
		require.NoError(t, m.Upload(ctx, filepath.Join(dir, "mon-tuto"), "mon-tuto"))
		require.NoError(t, m.Upload(ctx, filepath.Join(dir, "autre"), "autre"))
		assert.Equal(t, []string{
			"autre/autre.html",
			"mon-tuto/extra_contents/mon-tuto.md",
			"mon-tuto/introduction.html",
			"mon-tuto/manifest.json",
			"mon-tuto/partie/chapitre.html",
		}, fake.keys("public"))
		data, contentType := fake.object("public", "mon-tuto/partie/chapitre.html")
		assert.Equal(t, "<p>chapitre</p>", string(data))
		assert.True(t, strings.HasPrefix(contentType, "text/html"))
	})
	t.Run("upload drops files that are gone", func(t *testing.T) {
		require.NoError(t, os.RemoveAll(filepath.Join(dir, "mon-tuto", "partie")))
		require.NoError(t, m.Upload(ctx, filepath.Join(dir, "mon-tuto"), "mon-tuto"))
		assert.NotContains(t, fake.keys("public"), "mon-tuto/partie/chapitre.html")
		assert.Contains(t, fake.keys("public"), "mon-tuto/introduction.html")
	})
	t.Run("remove deletes only the prefix", func(t *testing.T) {
		require.NoError(t, m.Remove(ctx, "mon-tuto"))
		assert.Equal(t, []string{"autre/autre.html"}, fake.keys("public"))
	})
	t.Run("removing from a missing bucket does nothing", func(t *testing.T) {
		other, err := New(ctx, config.MirrorConfig{Endpoint: srv.URL, Region: "fr-par", Bucket: "nope", Key: "key", Secret: "secret"})
		require.NoError(t, err)
		assert.NoError(t, other.Remove(ctx, "mon-tuto"))
	})
}
