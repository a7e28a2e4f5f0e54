package fireboard

import (
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// tokenType makes oauth2 emit "Authorization: Token <key>".
const tokenType = "Token"

// session holds the login key in memory. It is the oauth2.TokenSource for
// authenticated requests; the token has no expiry and is only replaced by a
// new login.
type session struct {
	mu    sync.Mutex
	token *oauth2.Token
}

func (s *session) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return nil, ErrNoToken
	}
	token := *s.token
	return &token, nil
}

func (s *session) set(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = &oauth2.Token{AccessToken: key, TokenType: tokenType}
}

func (s *session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
}

func (s *session) valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != nil
}

// userAgentTransport stamps the integration's identifying header on every
// request, authenticated or not.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	clone.Header.Set("Accept", "application/json")
	return t.base.RoundTrip(clone)
}
