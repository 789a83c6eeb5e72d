// Package oauth implements the Databricks PKCE authorization-code flow and
// its on-disk token cache, used by the Databricks provider when no static
// API key is configured.
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultClientID = "databricks-cli"
	defaultScopes   = "all-apis"
	defaultRedirect = "http://localhost:8020"
)

// CachedToken is the on-disk shape persisted per (host, client, scopes).
type CachedToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Flow drives the PKCE authorization-code exchange against a Databricks
// workspace and caches the resulting bearer token on disk.
type Flow struct {
	Host         string
	ClientID     string
	RedirectAddr string
	Scopes       string
	CacheDir     string

	mu sync.Mutex
}

// NewFlow constructs a Flow with the core spec's documented defaults.
func NewFlow(host, cacheDir string) *Flow {
	return &Flow{
		Host:         strings.TrimRight(host, "/"),
		ClientID:     defaultClientID,
		RedirectAddr: defaultRedirect,
		Scopes:       defaultScopes,
		CacheDir:     cacheDir,
	}
}

// Token implements providers.TokenSource: it returns a cached bearer token
// when unexpired, otherwise runs the interactive authorization flow.
func (f *Flow) Token(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.cachePath()
	if cached, err := readCache(path); err == nil && cached.ExpiresAt.After(time.Now()) {
		return cached.AccessToken, nil
	}

	tok, err := f.authorize(ctx)
	if err != nil {
		return "", err
	}
	if err := writeCache(path, CachedToken{AccessToken: tok.AccessToken, ExpiresAt: tok.Expiry}); err != nil {
		return "", fmt.Errorf("cache oauth token: %w", err)
	}
	return tok.AccessToken, nil
}

func (f *Flow) cachePath() string {
	key := fmt.Sprintf("%s|%s|%s", f.Host, f.ClientID, f.Scopes)
	hash := sha256.Sum256([]byte(key))
	name := base64.RawURLEncoding.EncodeToString(hash[:]) + ".json"
	return filepath.Join(f.CacheDir, name)
}

func readCache(path string) (CachedToken, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CachedToken{}, err
	}
	var tok CachedToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return CachedToken{}, err
	}
	return tok, nil
}

func writeCache(path string, tok CachedToken) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// discoverEndpoints fetches the workspace's OAuth authorization/token URLs
// from its well-known configuration document.
func (f *Flow) discoverEndpoints(ctx context.Context) (authURL, tokenURL string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Host+"/oidc/.well-known/oauth-authorization-server", nil)
	if err != nil {
		return "", "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	var doc struct {
		AuthorizationEndpoint string `json:"authorization_endpoint"`
		TokenEndpoint         string `json:"token_endpoint"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", "", fmt.Errorf("decode oauth discovery document: %w", err)
	}
	return doc.AuthorizationEndpoint, doc.TokenEndpoint, nil
}

func randomURLSafe(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// authorize runs the PKCE flow end-to-end: discover endpoints, generate
// state/verifier/challenge, open the browser, run a one-shot loopback
// listener, and exchange the returned code.
func (f *Flow) authorize(ctx context.Context) (*oauth2.Token, error) {
	authEndpoint, tokenEndpoint, err := f.discoverEndpoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover databricks oauth endpoints: %w", err)
	}

	state, err := randomURLSafe(16)
	if err != nil {
		return nil, err
	}
	verifier, err := randomURLSafe(64)
	if err != nil {
		return nil, err
	}
	challengeSum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(challengeSum[:])

	conf := &oauth2.Config{
		ClientID:    f.ClientID,
		RedirectURL: f.RedirectAddr,
		Scopes:      strings.Split(f.Scopes, " "),
		Endpoint:    oauth2.Endpoint{AuthURL: authEndpoint, TokenURL: tokenEndpoint},
	}

	authURL := conf.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	redirectURL, err := urlHostPort(f.RedirectAddr)
	if err != nil {
		return nil, err
	}
	listener, err := net.Listen("tcp", redirectURL)
	if err != nil {
		return nil, fmt.Errorf("bind oauth loopback listener: %w", err)
	}

	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("state") != state {
			errCh <- fmt.Errorf("oauth state mismatch")
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		if errMsg := query.Get("error"); errMsg != "" {
			errCh <- fmt.Errorf("oauth error: %s", errMsg)
			http.Error(w, errMsg, http.StatusBadRequest)
			return
		}
		codeCh <- query.Get("code")
		fmt.Fprintln(w, "Authentication complete, you may close this window.")
	})}
	go func() { _ = server.Serve(listener) }()
	defer server.Close()

	openBrowser(authURL)

	select {
	case code := <-codeCh:
		tok, err := conf.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", verifier))
		if err != nil {
			return nil, fmt.Errorf("exchange databricks oauth code: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func urlHostPort(redirect string) (string, error) {
	redirect = strings.TrimPrefix(redirect, "http://")
	redirect = strings.TrimPrefix(redirect, "https://")
	if !strings.Contains(redirect, ":") {
		redirect += ":8020"
	}
	return redirect, nil
}

// openBrowser best-effort launches the system browser; failure is silent
// since the user can copy the URL manually from the terminal.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_ = cmd.Start()
}
