package fireboard

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
)

// fakeAPI is an in-memory FireBoard cloud. Responses are keyed by request
// path below /api/v1; anything unset answers 404.
type fakeAPI struct {
	t      *testing.T
	server *httptest.Server

	mu        sync.Mutex
	key       string
	loginCode int
	responses map[string]fakeResponse
	hits      map[string]int
	bodies    map[string]string
	authSeen  []string
	agents    []string
	delay     map[string]time.Duration
}

type fakeResponse struct {
	status int
	body   string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{
		t:         t,
		key:       "abc",
		loginCode: http.StatusOK,
		responses: make(map[string]fakeResponse),
		hits:      make(map[string]int),
		bodies:    make(map[string]string),
		delay:     make(map[string]time.Duration),
	}
	api.server = httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(api.server.Close)
	return api
}

func (a *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	a.mu.Lock()
	a.hits[r.URL.Path]++
	a.bodies[r.URL.Path] = string(body)
	a.agents = append(a.agents, r.Header.Get("User-Agent"))
	delay := a.delay[r.URL.Path]
	a.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if r.URL.Path == loginPath {
		a.login(w, r, body)
		return
	}

	a.mu.Lock()
	a.authSeen = append(a.authSeen, r.Header.Get("Authorization"))
	resp, ok := a.responses[strings.TrimPrefix(r.URL.Path, apiPrefix)]
	a.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_, _ = io.WriteString(w, resp.body)
}

func (a *fakeAPI) login(w http.ResponseWriter, r *http.Request, body []byte) {
	if r.Method != http.MethodPost {
		a.t.Errorf("expected POST to login, got %s", r.Method)
	}
	var creds map[string]string
	if err := json.Unmarshal(body, &creds); err != nil {
		a.t.Errorf("decode login body: %v", err)
	}
	if creds["username"] != "pit@example.com" || creds["password"] != "hunter2" {
		a.t.Errorf("unexpected login body: %s", body)
	}

	a.mu.Lock()
	code, key := a.loginCode, a.key
	a.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if code == http.StatusOK {
		_ = json.NewEncoder(w).Encode(map[string]string{"key": key})
		return
	}
	_, _ = io.WriteString(w, `{"non_field_errors":["Unable to log in with provided credentials."]}`)
}

func (a *fakeAPI) set(path string, status int, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responses[path] = fakeResponse{status: status, body: body}
}

func (a *fakeAPI) setDelay(path string, d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delay[apiPrefix+path] = d
}

func (a *fakeAPI) setLogin(status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loginCode = status
}

func (a *fakeAPI) count(path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if path == loginPath {
		return a.hits[path]
	}
	return a.hits[apiPrefix+path]
}

func (a *fakeAPI) total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, hits := range a.hits {
		n += hits
	}
	return n
}

func (a *fakeAPI) body(path string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bodies[apiPrefix+path]
}

func (a *fakeAPI) authorizations() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.authSeen...)
}

func (a *fakeAPI) userAgents() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.agents...)
}

func (a *fakeAPI) config(entry string) Config {
	return Config{
		EntryID:     entry,
		BaseURL:     a.server.URL,
		Credentials: Credentials{Username: "pit@example.com", Password: "hunter2"},
	}
}

func (a *fakeAPI) client(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(a.config("home"), a.server.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func (a *fakeAPI) coordinator(t *testing.T, mutate func(*Config)) *Coordinator {
	t.Helper()
	cfg := a.config("home")
	if mutate != nil {
		mutate(&cfg)
	}
	client, err := NewClient(cfg, a.server.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return NewCoordinator(cfg, client, logr.Discard())
}
