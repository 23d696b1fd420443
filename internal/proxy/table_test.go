package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auto-dns/dock-route/internal/domain"
)

type seenRequest struct {
	Method   string
	Host     string
	Path     string
	RawQuery string
	Header   http.Header
	Body     string
}

type backend struct {
	*httptest.Server
	mu   sync.Mutex
	seen []seenRequest
}

func newBackend(t *testing.T, name string) *backend {
	t.Helper()
	b := &backend{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.seen = append(b.seen, seenRequest{
			Method:   r.Method,
			Host:     r.Host,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Header:   r.Header.Clone(),
			Body:     string(body),
		})
		b.mu.Unlock()
		w.Header().Set("X-Backend", name)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, "hello from "+name)
	}))
	t.Cleanup(b.Close)
	return b
}

func (b *backend) requests() []seenRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]seenRequest(nil), b.seen...)
}

func dispatch(table *Table, method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	rec := httptest.NewRecorder()
	table.ServeHTTP(rec, req)
	return rec
}

func TestSubdomainFromHost(t *testing.T) {
	cases := map[string]string{
		"blog.myhost.io":         "blog",
		"blog.myhost.io:8080":    "blog",
		"a.b.c.d":                "a",
		"Blog.example.com":       "Blog",
		"example.com":            DefaultSubdomain,
		"example.com:8080":       DefaultSubdomain,
		"localhost":              DefaultSubdomain,
		"localhost:8080":         DefaultSubdomain,
		"203.0.113.5":            DefaultSubdomain,
		"203.0.113.5:8080":       DefaultSubdomain,
		"[2001:db8::1]:8080":     DefaultSubdomain,
		"":                       DefaultSubdomain,
		"preview-app.dock.local": "preview-app",
	}
	for host, want := range cases {
		assert.Equal(t, want, SubdomainFromHost(host), "host %q", host)
	}
}

func TestAddProxyValidation(t *testing.T) {
	table := NewTable(nil, zerolog.Nop())

	for _, target := range []string{
		"", "127.0.0.1:9001", "://bad", "http://", "/just/a/path", "http://[::1",
		"http://localhost:9001/base", "http://localhost:9001/base/", "http://localhost:9001?x=1",
		"http://localhost:9001/#frag",
	} {
		err := table.AddProxy("blog", target)
		assert.True(t, domain.IsValidation(err), "target %q: %v", target, err)
	}
	assert.False(t, table.HasProxy("blog"))
	assert.Empty(t, table.GetActiveSubdomains())
}

func TestDispatchForwards(t *testing.T) {
	be := newBackend(t, "one")
	table := NewTable(nil, zerolog.Nop())
	require.NoError(t, table.AddProxy("blog", be.URL))

	req := httptest.NewRequest(http.MethodPost, "http://blog.myhost.io/a?x=1", strings.NewReader("payload"))
	req.Header.Set("X-Custom", "kept")
	rec := httptest.NewRecorder()
	table.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "one", rec.Header().Get("X-Backend"))
	assert.Equal(t, "hello from one", rec.Body.String())

	seen := be.requests()
	require.Len(t, seen, 1)
	assert.Equal(t, http.MethodPost, seen[0].Method)
	assert.Equal(t, strings.TrimPrefix(be.URL, "http://"), seen[0].Host)
	assert.Equal(t, "/a", seen[0].Path)
	assert.Equal(t, "x=1", seen[0].RawQuery)
	assert.Equal(t, "kept", seen[0].Header.Get("X-Custom"))
	assert.Equal(t, "payload", seen[0].Body)
}

func TestTrailingSlashTargetKeepsRequestPath(t *testing.T) {
	be := newBackend(t, "one")
	table := NewTable(nil, zerolog.Nop())
	require.NoError(t, table.AddProxy("blog", be.URL+"/"))

	rec := dispatch(table, http.MethodGet, "http://blog.myhost.io/a?x=1", nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	seen := be.requests()
	require.Len(t, seen, 1)
	assert.Equal(t, "/a", seen[0].Path)
	assert.Equal(t, "x=1", seen[0].RawQuery)
}

func TestDispatchDefaultBucket(t *testing.T) {
	be := newBackend(t, "root")
	table := NewTable(nil, zerolog.Nop())
	require.NoError(t, table.AddProxy(DefaultSubdomain, be.URL))

	for _, host := range []string{"example.com", "203.0.113.5", "localhost:8080"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = host
		rec := httptest.NewRecorder()
		table.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusCreated, rec.Code, "host %q", host)
	}
	assert.Len(t, be.requests(), 3)
}

func TestDispatchMissIsNotFound(t *testing.T) {
	table := NewTable(nil, zerolog.Nop())
	methods := []string{
		http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}

	for _, method := range methods {
		rec := dispatch(table, method, "http://nothing.example.com/x", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, method)
		if method != http.MethodHead {
			assert.Equal(t, notFoundBody, strings.TrimSpace(rec.Body.String()), method)
		}
	}
}

func TestReplaceSupersedesTarget(t *testing.T) {
	first := newBackend(t, "9001")
	second := newBackend(t, "9002")
	table := NewTable(nil, zerolog.Nop())

	require.NoError(t, table.AddProxy("blog", first.URL))
	rec := dispatch(table, http.MethodGet, "http://blog.myhost.io/a?x=1", nil)
	assert.Equal(t, "9001", rec.Header().Get("X-Backend"))

	require.NoError(t, table.AddProxy("blog", second.URL))
	for i := 0; i < 3; i++ {
		rec = dispatch(table, http.MethodGet, "http://blog.myhost.io/a?x=1", nil)
		assert.Equal(t, "9002", rec.Header().Get("X-Backend"))
	}

	assert.Len(t, first.requests(), 1)
	assert.Len(t, second.requests(), 3)
	assert.Equal(t, []string{"blog"}, table.GetActiveSubdomains())
	target, ok := table.Target("blog")
	assert.True(t, ok)
	assert.Equal(t, second.URL, target)
}

func TestInvalidReplaceKeepsExistingEntry(t *testing.T) {
	be := newBackend(t, "one")
	table := NewTable(nil, zerolog.Nop())
	require.NoError(t, table.AddProxy("blog", be.URL))

	require.Error(t, table.AddProxy("blog", "not a url"))

	target, ok := table.Target("blog")
	assert.True(t, ok)
	assert.Equal(t, be.URL, target)
}

func TestRemoveProxy(t *testing.T) {
	be := newBackend(t, "one")
	table := NewTable(nil, zerolog.Nop())

	require.NoError(t, table.AddProxy("x", be.URL))
	assert.True(t, table.HasProxy("x"))

	table.RemoveProxy("x")
	assert.False(t, table.HasProxy("x"))
	assert.Empty(t, table.GetActiveSubdomains())

	rec := dispatch(table, http.MethodGet, "http://x.example.com/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, be.requests())

	table.RemoveProxy("never-registered")
}

func TestUnreachableBackendIsBadGateway(t *testing.T) {
	be := newBackend(t, "gone")
	url := be.URL
	be.Close()

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	table := NewTable(metrics, zerolog.Nop())
	require.NoError(t, table.AddProxy("gone", url))

	rec := dispatch(table, http.MethodGet, "http://gone.example.com/", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues(outcomeUpstreamError)))
}

func TestMetrics(t *testing.T) {
	be := newBackend(t, "one")
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	table := NewTable(metrics, zerolog.Nop())

	require.NoError(t, table.AddProxy("a", be.URL))
	require.NoError(t, table.AddProxy("b", be.URL))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.routes))

	dispatch(table, http.MethodGet, "http://a.example.com/", nil)
	dispatch(table, http.MethodGet, "http://zzz.example.com/", nil)
	dispatch(table, http.MethodGet, "http://zzz.example.com/", nil)
	table.RemoveProxy("b")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues(outcomeForwarded)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.requests.WithLabelValues(outcomeMiss)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.routes))
}

func TestConcurrentMutationAndDispatch(t *testing.T) {
	be := newBackend(t, "one")
	table := NewTable(nil, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = table.AddProxy("race", be.URL)
				table.RemoveProxy("race")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rec := dispatch(table, http.MethodGet, "http://race.example.com/", nil)
				assert.Contains(t, []int{http.StatusCreated, http.StatusNotFound}, rec.Code)
			}
		}()
	}
	wg.Wait()
}

func TestHungBackendDoesNotBlockTable(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var enterOnce sync.Once
	hung := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enterOnce.Do(func() { close(entered) })
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(hung.Close)
	// Runs before hung.Close so the blocked handler can return.
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})
	healthy := newBackend(t, "healthy")

	table := NewTable(nil, zerolog.Nop())
	require.NoError(t, table.AddProxy("slow", hung.URL))
	require.NoError(t, table.AddProxy("fast", healthy.URL))

	stuck := make(chan int, 1)
	go func() {
		stuck <- dispatch(table, http.MethodGet, "http://slow.example.com/", nil).Code
	}()
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached the hung backend")
	}

	tests := []struct {
		name string
		op   func(t *testing.T)
	}{
		{"add proxy", func(t *testing.T) { assert.NoError(t, table.AddProxy("new", healthy.URL)) }},
		{"replace proxy", func(t *testing.T) { assert.NoError(t, table.AddProxy("slow", healthy.URL)) }},
		{"remove proxy", func(t *testing.T) { table.RemoveProxy("new") }},
		{"dispatch elsewhere", func(t *testing.T) {
			assert.Equal(t, http.StatusCreated, dispatch(table, http.MethodGet, "http://fast.example.com/", nil).Code)
		}},
		{"snapshot", func(t *testing.T) { assert.Len(t, table.Entries(), 2) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			done := make(chan struct{})
			go func() {
				defer close(done)
				tc.op(t)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatalf("%s blocked behind a hung backend", tc.name)
			}
		})
	}

	select {
	case code := <-stuck:
		t.Fatalf("hung request finished early with %d", code)
	default:
	}

	close(release)
	select {
	case code := <-stuck:
		assert.Equal(t, http.StatusOK, code)
	case <-time.After(2 * time.Second):
		t.Fatal("released request did not complete")
	}
}
