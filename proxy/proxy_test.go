package proxy

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// fakeGitHub stands in for both the OAuth token endpoint and the
// applications API.
func fakeGitHub(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var revoked []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/login/oauth/access_token":
			if err := r.ParseForm(); err != nil {
				t.Errorf("ParseForm: %v", err)
			}
			if r.Form.Get("client_secret") != "secret" {
				t.Errorf("client_secret = %q", r.Form.Get("client_secret"))
			}
			w.Header().Set("Content-Type", "application/json")
			if r.Form.Get("code") == "good" {
				_, _ = w.Write([]byte(`{"access_token":"gho_x","token_type":"bearer","scope":"public_repo"}`))
				return
			}
			_, _ = w.Write([]byte(`{"error":"bad_verification_code","error_description":"The code passed is incorrect or expired."}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/applications/cid/grant":
			user, pass, _ := r.BasicAuth()
			if user != "cid" || pass != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			revoked = append(revoked, body["access_token"])
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &revoked
}

func newTestServer(t *testing.T) (http.Handler, *[]string, *bytes.Buffer) {
	t.Helper()
	gh, revoked := fakeGitHub(t)
	s := New(Config{
		ClientID:       "cid",
		ClientSecret:   "secret",
		AllowedOrigins: ParseOrigins("https://theburd.github.io, https://example.org"),
		Endpoint: oauth2.Endpoint{
			AuthURL:   gh.URL + "/login/oauth/authorize",
			TokenURL:  gh.URL + "/login/oauth/access_token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		APIBase: gh.URL,
	}, zerolog.Nop())
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	var logBuf bytes.Buffer
	return s.Handler(&logBuf), revoked, &logBuf
}

func do(h http.Handler, method, path, origin, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var m map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestParseOrigins(t *testing.T) {
	got := ParseOrigins(" https://a.example , ,https://b.example")
	if !reflect.DeepEqual(got, []string{"https://a.example", "https://b.example"}) {
		t.Fatalf("ParseOrigins = %v", got)
	}
}

func TestToken(t *testing.T) {
	h, _, logBuf := newTestServer(t)

	rec := do(h, http.MethodPost, "/token", "https://theburd.github.io", `{"code":"good","state":"s"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if got := decode(t, rec); got["access_token"] != "gho_x" || got["scope"] != "public_repo" {
		t.Fatalf("body = %v", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://theburd.github.io" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if !strings.Contains(logBuf.String(), `"POST /token HTTP/1.1" 200`) {
		t.Errorf("access log = %q", logBuf.String())
	}
}

func TestToken_Errors(t *testing.T) {
	h, _, _ := newTestServer(t)

	rec := do(h, http.MethodPost, "/token", "", `{"state":"s"}`)
	if rec.Code != http.StatusBadRequest || decode(t, rec)["error"] != "Missing code parameter" {
		t.Fatalf("missing code: %d %s", rec.Code, rec.Body)
	}

	rec = do(h, http.MethodPost, "/token", "", `{"code":"stale"}`)
	if rec.Code != http.StatusBadRequest || decode(t, rec)["error"] != "bad_verification_code" {
		t.Fatalf("stale code: %d %s", rec.Code, rec.Body)
	}

	rec = do(h, http.MethodPost, "/token", "", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: %d", rec.Code)
	}
}

func TestRevoke(t *testing.T) {
	h, revoked, _ := newTestServer(t)

	rec := do(h, http.MethodPost, "/revoke", "", `{"token":"gho_x"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if !reflect.DeepEqual(*revoked, []string{"gho_x"}) {
		t.Fatalf("revoked = %v", *revoked)
	}

	if rec := do(h, http.MethodPost, "/revoke", "", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty revoke status = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	h, _, _ := newTestServer(t)
	rec := do(h, http.MethodGet, "/health", "", "")
	want := map[string]string{"status": "ok", "timestamp": "2024-05-01T12:00:00.000Z"}
	if got := decode(t, rec); !reflect.DeepEqual(got, want) {
		t.Fatalf("health = %v", got)
	}
}

func TestNotFound(t *testing.T) {
	h, _, _ := newTestServer(t)
	rec := do(h, http.MethodGet, "/nope", "", "")
	if rec.Code != http.StatusNotFound || decode(t, rec)["error"] != "Not found" {
		t.Fatalf("not found: %d %s", rec.Code, rec.Body)
	}
}

func TestCORS(t *testing.T) {
	h, _, _ := newTestServer(t)

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/token", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for _, origin := range []string{"https://example.org", "http://localhost:5173", "http://127.0.0.1:8080"} {
		rec := preflight(origin)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != origin {
			t.Errorf("%s: Access-Control-Allow-Origin = %q", origin, got)
		}
	}

	for _, origin := range []string{"https://evil.example", "https://localhost.evil.com", "https://evil.com/?127.0.0.1"} {
		rec := preflight(origin)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("%s: disallowed origin got Access-Control-Allow-Origin = %q", origin, got)
		}
	}
}
