package testsupport

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Graph API edges the fake distinguishes.
const (
	EdgePage         = "page"
	EdgePhotos       = "photos"
	EdgeMedia        = "media"
	EdgeMediaPublish = "media_publish"
	EdgeDelete       = "delete"
)

// Responder produces a status code and JSON body for a request.
type Responder func(r *http.Request) (int, string)

// GraphAPI is an httptest server standing in for the Graph API. Every edge
// succeeds by default; tests override edges with On.
type GraphAPI struct {
	Server *httptest.Server

	mu         sync.Mutex
	counts     map[string]int
	forms      map[string][]map[string]string
	responders map[string]Responder
	seq        int
}

func NewGraphAPI(t testing.TB) *GraphAPI {
	t.Helper()

	g := &GraphAPI{
		counts:     make(map[string]int),
		forms:      make(map[string][]map[string]string),
		responders: make(map[string]Responder),
	}
	g.Server = httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(g.Server.Close)
	return g
}

func (g *GraphAPI) URL() string {
	return g.Server.URL
}

func (g *GraphAPI) Client() *http.Client {
	return g.Server.Client()
}

// On replaces the responder for an edge.
func (g *GraphAPI) On(edge string, fn Responder) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.responders[edge] = fn
}

// Fail makes an edge answer with a Graph error envelope.
func (g *GraphAPI) Fail(edge string, status, code int, message string) {
	body := fmt.Sprintf(`{"error":{"message":%q,"type":"OAuthException","code":%d,"fbtrace_id":"x"}}`, message, code)
	g.On(edge, func(*http.Request) (int, string) { return status, body })
}

func (g *GraphAPI) Count(edge string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counts[edge]
}

// Forms returns the decoded form fields of every call to an edge.
func (g *GraphAPI) Forms(edge string) []map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]map[string]string(nil), g.forms[edge]...)
}

func edgeOf(r *http.Request) string {
	if r.Method == http.MethodDelete {
		return EdgeDelete
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch last := parts[len(parts)-1]; {
	case r.Method == http.MethodGet:
		return EdgePage
	case last == EdgePhotos, last == EdgeMedia, last == EdgeMediaPublish:
		return last
	}
	return "unknown"
}

func (g *GraphAPI) serve(w http.ResponseWriter, r *http.Request) {
	edge := edgeOf(r)

	fields := map[string]string{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		_ = r.ParseMultipartForm(1 << 20)
	} else {
		_ = r.ParseForm()
	}
	for k, v := range r.Form {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}

	g.mu.Lock()
	g.counts[edge]++
	g.forms[edge] = append(g.forms[edge], fields)
	g.seq++
	n := g.seq
	fn := g.responders[edge]
	g.mu.Unlock()

	status, body := http.StatusOK, ""
	if fn != nil {
		status, body = fn(r)
	} else {
		body = defaultBody(edge, r, n)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func defaultBody(edge string, r *http.Request, n int) string {
	switch edge {
	case EdgePage:
		id := strings.Trim(r.URL.Path, "/")
		if i := strings.LastIndex(id, "/"); i >= 0 {
			id = id[i+1:]
		}
		return fmt.Sprintf(`{"id":%q,"name":"Test Page"}`, id)
	case EdgePhotos:
		return fmt.Sprintf(`{"id":"post-%d"}`, n)
	case EdgeMedia:
		return fmt.Sprintf(`{"id":"creation-%d"}`, n)
	case EdgeMediaPublish:
		return fmt.Sprintf(`{"id":"media-%d"}`, n)
	case EdgeDelete:
		return `{"success":true}`
	}
	return `{"error":{"message":"unknown edge","code":100}}`
}
