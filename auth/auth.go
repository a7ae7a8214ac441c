// Package auth implements GitHub sign-in for the submission flow.
//
// The flow is the OAuth authorization code grant, with the client secret
// held by the token proxy rather than the CLI:
//  1. Start a local HTTP server on a random port
//  2. Open the browser to GitHub's authorization URL
//  3. GitHub redirects back to the local server with code and state
//  4. The code is exchanged for a token through the proxy's /token route
//
// The token is kept in the transkit cache until logout.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/bsj-tools/transkit/storage"
)

// Error is a failed sign-in step. Code is one of the constants below or the
// error code GitHub returned.
type Error struct {
	Code        string
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

const (
	CodeNoCode        = "no_code"
	CodeStateMismatch = "state_mismatch"
	CodeExchange      = "token_exchange_failed"
	CodeNoToken       = "no_token"
	CodeNetwork       = "network_error"
)

// Authenticator runs the sign-in flow against one OAuth app and proxy.
type Authenticator struct {
	ClientID string
	Scopes   []string
	// ProxyURL is the base URL of the token exchange proxy.
	ProxyURL string
	Endpoint oauth2.Endpoint
	HTTP     *http.Client
	Cache    *storage.Cache
	Log      zerolog.Logger

	// OpenBrowser opens url; it defaults to the platform opener.
	OpenBrowser func(url string) error
}

// New returns an Authenticator using GitHub's OAuth endpoint.
func New(clientID, proxyURL string, scopes []string, cache *storage.Cache) *Authenticator {
	return &Authenticator{
		ClientID:    clientID,
		Scopes:      scopes,
		ProxyURL:    strings.TrimRight(proxyURL, "/"),
		Endpoint:    github.Endpoint,
		HTTP:        &http.Client{Timeout: 30 * time.Second},
		Cache:       cache,
		Log:         zerolog.Nop(),
		OpenBrowser: openBrowser,
	}
}

func (a *Authenticator) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    a.ClientID,
		Endpoint:    a.Endpoint,
		RedirectURL: redirectURI,
		Scopes:      a.Scopes,
	}
}

// AuthURL returns the authorization URL for one sign-in attempt.
func (a *Authenticator) AuthURL(redirectURI, state string) string {
	return a.oauthConfig(redirectURI).AuthCodeURL(state)
}

// newState returns a fresh CSRF state value.
func newState() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

type callbackResult struct {
	code string
	err  error
}

// callbackHandler validates one redirect from GitHub and reports the code.
func callbackHandler(state string, results chan<- callbackResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res callbackResult
		switch {
		case q.Get("error") != "":
			desc := q.Get("error_description")
			if desc == "" {
				desc = "Authorization failed"
			}
			res.err = &Error{Code: q.Get("error"), Description: desc}
		case q.Get("code") == "":
			res.err = &Error{Code: CodeNoCode, Description: "No authorization code received"}
		case q.Get("state") != state:
			res.err = &Error{Code: CodeStateMismatch, Description: "Security check failed. Please try again."}
		default:
			res.code = q.Get("code")
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if res.err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "Sign-in failed: %v\nYou can close this window.\n", res.err)
		} else {
			fmt.Fprintln(w, "Signed in to GitHub. You can close this window and return to the terminal.")
		}

		select {
		case results <- res:
		default:
		}
	})
}

// Login runs the browser flow and stores the resulting token. onPrompt
// receives the authorization URL in case the browser does not open.
func (a *Authenticator) Login(ctx context.Context, onPrompt func(authURL string)) (string, error) {
	state, err := newState()
	if err != nil {
		return "", err
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("starting local server: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	redirectURI := fmt.Sprintf("http://127.0.0.1:%d/callback", port)
	authURL := a.AuthURL(redirectURI, state)

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.Handle("/callback", callbackHandler(state, results))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			results <- callbackResult{err: fmt.Errorf("callback server error: %w", err)}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if onPrompt != nil {
		onPrompt(authURL)
	}
	if a.OpenBrowser != nil {
		if err := a.OpenBrowser(authURL); err != nil {
			a.Log.Debug().Err(err).Msg("could not open browser")
		}
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-results:
		if res.err != nil {
			return "", res.err
		}
		token, err := a.Exchange(ctx, res.code, state)
		if err != nil {
			return "", err
		}
		if err := a.Cache.SaveToken(token); err != nil {
			return token, fmt.Errorf("token obtained but failed to save: %w", err)
		}
		return token, nil
	}
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func (a *Authenticator) postJSON(ctx context.Context, path string, body any) (*http.Response, []byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.ProxyURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.HTTP.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	return resp, respBody, err
}

// Exchange trades an authorization code for an access token via the proxy.
func (a *Authenticator) Exchange(ctx context.Context, code, state string) (string, error) {
	resp, body, err := a.postJSON(ctx, "/token", map[string]string{"code": code, "state": state})
	if err != nil {
		return "", &Error{Code: CodeNetwork, Description: err.Error()}
	}

	var tr tokenResponse
	_ = json.Unmarshal(body, &tr)
	if resp.StatusCode != http.StatusOK {
		desc := tr.Error
		if desc == "" {
			desc = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return "", &Error{Code: CodeExchange, Description: desc}
	}
	if tr.AccessToken == "" {
		desc := tr.ErrorDescription
		if desc == "" {
			desc = "No access token in response"
		}
		return "", &Error{Code: CodeNoToken, Description: desc}
	}
	return tr.AccessToken, nil
}

// Logout clears the stored token, then asks the proxy to revoke it.
// Revocation failures are logged and ignored.
func (a *Authenticator) Logout(ctx context.Context) error {
	token := a.Cache.Token()
	if err := a.Cache.ClearToken(); err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}
	if token == "" {
		return nil
	}
	resp, _, err := a.postJSON(ctx, "/revoke", map[string]string{"token": token})
	switch {
	case err != nil:
		a.Log.Warn().Err(err).Msg("failed to revoke token")
	case resp.StatusCode >= 300:
		a.Log.Warn().Int("status", resp.StatusCode).Msg("failed to revoke token")
	}
	return nil
}

// Status describes the stored token for display.
func (a *Authenticator) Status() string {
	token := a.Cache.Token()
	if token == "" {
		return "not authenticated"
	}
	return fmt.Sprintf("authenticated (token: %s)", storage.MaskKey(token))
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
