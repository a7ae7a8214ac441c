package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bsj-tools/transkit/storage"
)

func newTestAuth(t *testing.T, proxy http.HandlerFunc) *Authenticator {
	t.Helper()
	cache := storage.NewCache(storage.NewMemStore(), "3.0.0", zerolog.Nop())
	a := New("client-id-123", "http://unused", []string{"public_repo"}, cache)
	if proxy != nil {
		srv := httptest.NewServer(proxy)
		t.Cleanup(srv.Close)
		a.ProxyURL = srv.URL
	}
	return a
}

func TestAuthURL(t *testing.T) {
	a := newTestAuth(t, nil)
	raw := a.AuthURL("http://127.0.0.1:8080/callback", "state-1")
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse() error: %v", err)
	}
	if got := parsed.Scheme + "://" + parsed.Host + parsed.Path; got != "https://github.com/login/oauth/authorize" {
		t.Fatalf("authorization endpoint = %q", got)
	}
	q := parsed.Query()
	if got := q.Get("client_id"); got != "client-id-123" {
		t.Fatalf("client_id = %q", got)
	}
	if got := q.Get("redirect_uri"); got != "http://127.0.0.1:8080/callback" {
		t.Fatalf("redirect_uri = %q", got)
	}
	if got := q.Get("scope"); got != "public_repo" {
		t.Fatalf("scope = %q", got)
	}
	if got := q.Get("state"); got != "state-1" {
		t.Fatalf("state = %q", got)
	}
}

func TestNewStateIsUnique(t *testing.T) {
	s1, err := newState()
	if err != nil {
		t.Fatal(err)
	}
	s2, _ := newState()
	if len(s1) != 32 || s1 == s2 {
		t.Fatalf("states %q and %q", s1, s2)
	}
}

func TestCallbackHandler(t *testing.T) {
	cases := []struct {
		name  string
		query string
		code  string
		err   string
	}{
		{name: "ok", query: "code=abc&state=s1", code: "abc"},
		{name: "provider error", query: "error=access_denied&state=s1", err: "access_denied"},
		{name: "no code", query: "state=s1", err: CodeNoCode},
		{name: "state mismatch", query: "code=abc&state=other", err: CodeStateMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			results := make(chan callbackResult, 1)
			rec := httptest.NewRecorder()
			callbackHandler("s1", results).ServeHTTP(rec, httptest.NewRequest("GET", "/callback?"+tc.query, nil))
			res := <-results

			if tc.err == "" {
				if res.err != nil || res.code != tc.code || rec.Code != http.StatusOK {
					t.Fatalf("result = %+v, status %d", res, rec.Code)
				}
				return
			}
			var authErr *Error
			if !errors.As(res.err, &authErr) || authErr.Code != tc.err {
				t.Fatalf("err = %v, want code %s", res.err, tc.err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
		})
	}
}

func TestExchange(t *testing.T) {
	a := newTestAuth(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch body["code"] {
		case "good":
			_, _ = w.Write([]byte(`{"access_token":"gho_token"}`))
		case "expired":
			_, _ = w.Write([]byte(`{"error":"bad_verification_code","error_description":"The code passed is incorrect or expired."}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"Missing code parameter"}`))
		}
	})
	ctx := context.Background()

	if tok, err := a.Exchange(ctx, "good", "s"); err != nil || tok != "gho_token" {
		t.Fatalf("Exchange(good) = %q, %v", tok, err)
	}

	_, err := a.Exchange(ctx, "expired", "s")
	var authErr *Error
	if !errors.As(err, &authErr) || authErr.Code != CodeNoToken || !strings.Contains(authErr.Description, "expired") {
		t.Fatalf("Exchange(expired) err = %v", err)
	}

	_, err = a.Exchange(ctx, "", "s")
	if !errors.As(err, &authErr) || authErr.Code != CodeExchange || authErr.Description != "Missing code parameter" {
		t.Fatalf("Exchange(empty) err = %v", err)
	}
}

func TestLogin(t *testing.T) {
	a := newTestAuth(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"gho_login"}`))
	})
	a.OpenBrowser = func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		q := u.Query()
		go func() {
			resp, err := http.Get(q.Get("redirect_uri") + "?code=c1&state=" + url.QueryEscape(q.Get("state")))
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var prompted string
	token, err := a.Login(ctx, func(u string) { prompted = u })
	if err != nil {
		t.Fatal(err)
	}
	if token != "gho_login" || a.Cache.Token() != "gho_login" {
		t.Fatalf("token = %q, stored %q", token, a.Cache.Token())
	}
	if !strings.HasPrefix(prompted, "https://github.com/login/oauth/authorize?") {
		t.Fatalf("prompted URL = %q", prompted)
	}
}

func TestLogoutIgnoresRevokeFailure(t *testing.T) {
	var revoked string
	a := newTestAuth(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		revoked = body["token"]
		w.WriteHeader(http.StatusInternalServerError)
	})
	if err := a.Cache.SaveToken("gho_abcdefghijkl"); err != nil {
		t.Fatal(err)
	}
	if got := a.Status(); got != "authenticated (token: gho_...ijkl)" {
		t.Fatalf("Status() = %q", got)
	}

	if err := a.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}
	if revoked != "gho_abcdefghijkl" {
		t.Errorf("revoked token = %q", revoked)
	}
	if a.Cache.IsAuthenticated() {
		t.Error("token still stored after logout")
	}
	if got := a.Status(); got != "not authenticated" {
		t.Fatalf("Status() = %q", got)
	}
}

func TestLogoutUnreachableProxy(t *testing.T) {
	a := newTestAuth(t, nil)
	a.ProxyURL = "http://127.0.0.1:1"
	_ = a.Cache.SaveToken("gho_token_value")
	if err := a.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}
	if a.Cache.IsAuthenticated() {
		t.Error("token still stored")
	}
}
