package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bsj-tools/transkit/export"
	"github.com/bsj-tools/transkit/mapping"
)

type fakeGitHub struct {
	mu       sync.Mutex
	calls    []string
	puts     map[string]putFileRequest
	pr       map[string]any
	hasFork  bool
	forkPoll int
	existing map[string]string
	status   int
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		call := r.Method + " " + r.URL.Path
		f.calls = append(f.calls, call)

		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("%s: Authorization = %q", call, got)
		}
		if f.status != 0 {
			w.WriteHeader(f.status)
			_, _ = io.WriteString(w, `{"message":"Bad credentials"}`)
			return
		}

		switch {
		case call == "GET /user":
			_, _ = io.WriteString(w, `{"login":"alice"}`)
		case call == "GET /repos/alice/Repo":
			if !f.hasFork {
				if f.forkPoll > 0 {
					f.forkPoll--
					w.WriteHeader(http.StatusNotFound)
					return
				}
				if len(f.calls) > 3 {
					f.hasFork = true
				} else {
					w.WriteHeader(http.StatusNotFound)
					_, _ = io.WriteString(w, `{"message":"Not Found"}`)
					return
				}
			}
			_, _ = io.WriteString(w, `{"full_name":"alice/Repo","fork":true,"parent":{"full_name":"Owner/Repo"}}`)
		case call == "POST /repos/Owner/Repo/forks":
			_, _ = io.WriteString(w, `{"full_name":"alice/Repo"}`)
		case call == "GET /repos/Owner/Repo/git/ref/heads/main":
			_, _ = io.WriteString(w, `{"object":{"sha":"abc123"}}`)
		case call == "POST /repos/alice/Repo/git/refs":
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{}`)
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/repos/alice/Repo/contents/"):
			p := strings.TrimPrefix(r.URL.Path, "/repos/alice/Repo/contents/")
			if sha, ok := f.existing[p]; ok {
				_, _ = io.WriteString(w, `{"sha":"`+sha+`"}`)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut:
			var req putFileRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			f.puts[strings.TrimPrefix(r.URL.Path, "/repos/alice/Repo/contents/")] = req
			w.WriteHeader(http.StatusCreated)
		case call == "POST /repos/Owner/Repo/pulls":
			_ = json.NewDecoder(r.Body).Decode(&f.pr)
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"number":7,"html_url":"https://github.com/Owner/Repo/pull/7"}`)
		default:
			t.Errorf("unexpected call %s", call)
			w.WriteHeader(http.StatusTeapot)
		}
	})
}

func newTestClient(t *testing.T, f *fakeGitHub) *Client {
	t.Helper()
	if f.puts == nil {
		f.puts = map[string]putFileRequest{}
	}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	c := NewClient(context.Background(), "tok", "Owner", "Repo", "main")
	c.APIBase = srv.URL
	c.PollInterval = time.Millisecond
	c.Now = func() time.Time { return time.UnixMilli(1700000000000) }
	return c
}

func testAssembler() *export.Assembler {
	return &export.Assembler{
		Reference: mapping.FromPairs("UI_A", "A", "UI_B", "B", "Sandbox_X", "X"),
		Layouts: []export.Layout{
			{Name: "Build 42", Path: "Contents/mods/M/42/Translate"},
			{Name: "Build 41", Path: "Contents/mods/M/common/Translate"},
		},
		ModName:     "Mod",
		ToolVersion: "3.0.0",
	}
}

func TestSubmit(t *testing.T) {
	f := &fakeGitHub{hasFork: true, existing: map[string]string{
		"Contents/mods/M/42/Translate/FR/UI_FR.txt": "sha-42",
	}}
	c := newTestClient(t, f)

	var steps []string
	res, err := c.Submit(context.Background(), Submission{
		Changes: map[string]*mapping.Mapping{
			"FR": mapping.FromPairs("UI_B", "Bé"),
			"DE": mapping.New(),
		},
		Base:       map[string]*mapping.Mapping{"FR": mapping.FromPairs("UI_A", "À", "UI_B", "old", "Sandbox_X", "x")},
		Assembler:  testAssembler(),
		LangNames:  map[string]string{"FR": "French"},
		OnProgress: func(step string, _ int) { steps = append(steps, step) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Number != 7 || res.Branch != "translation/FR-1700000000000" || len(res.Languages) != 1 {
		t.Fatalf("result = %+v", res)
	}

	if len(f.puts) != 2 {
		t.Fatalf("puts = %v, want UI table in both layouts", f.puts)
	}
	put42 := f.puts["Contents/mods/M/42/Translate/FR/UI_FR.txt"]
	if put42.SHA != "sha-42" || put42.Branch != res.Branch || put42.Message != "Add/Update FR UI translation" {
		t.Errorf("build 42 put = %+v", put42)
	}
	if put41 := f.puts["Contents/mods/M/common/Translate/FR/UI_FR.txt"]; put41.SHA != "" {
		t.Errorf("new file sent sha %q", put41.SHA)
	}
	content, _ := base64.StdEncoding.DecodeString(put42.Content)
	if want := "UI_FR = {\n    UI_A = \"À\",\n\n    UI_B = \"Bé\",\n}\n"; string(content) != want {
		t.Errorf("committed table = %q, want %q", content, want)
	}

	if f.pr["title"] != "Add/Update French translation" || f.pr["head"] != "alice:"+res.Branch ||
		f.pr["base"] != "main" || f.pr["maintainer_can_modify"] != true {
		t.Errorf("pull request = %v", f.pr)
	}
	if steps[0] != "Getting user info..." || steps[len(steps)-1] != "Done!" {
		t.Errorf("steps = %v", steps)
	}
}

func TestSubmit_CreatesForkAndPolls(t *testing.T) {
	f := &fakeGitHub{forkPoll: 0}
	c := newTestClient(t, f)

	_, err := c.Submit(context.Background(), Submission{
		Changes:   map[string]*mapping.Mapping{"FR": mapping.FromPairs("Sandbox_X", "x")},
		Assembler: testAssembler(),
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"GET /user", "GET /repos/alice/Repo", "POST /repos/Owner/Repo/forks", "GET /repos/alice/Repo"}
	for i, w := range want {
		if f.calls[i] != w {
			t.Fatalf("call %d = %q, want %q (calls %v)", i, f.calls[i], w, f.calls)
		}
	}
}

func TestCreateFork_GivesUpOptimistically(t *testing.T) {
	f := &fakeGitHub{forkPoll: 100}
	c := newTestClient(t, f)
	c.PollAttempts = 3

	fork, err := c.CreateFork(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if fork.FullName != "alice/Repo" {
		t.Fatalf("fork = %+v", fork)
	}
	if len(f.calls) != 4 {
		t.Fatalf("calls = %v, want create + 3 polls", f.calls)
	}
}

func TestSubmit_AuthError(t *testing.T) {
	f := &fakeGitHub{status: http.StatusUnauthorized}
	c := newTestClient(t, f)
	cleared := 0
	c.OnAuthError = func() { cleared++ }

	_, err := c.Submit(context.Background(), Submission{
		Changes:   map[string]*mapping.Mapping{"FR": mapping.FromPairs("UI_A", "a")},
		Assembler: testAssembler(),
	})
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Message != "Bad credentials" {
		t.Fatalf("err = %v, want AuthError", err)
	}
	if cleared != 1 || len(f.calls) != 1 {
		t.Fatalf("cleared = %d, calls = %v", cleared, f.calls)
	}
}

func TestSubmit_Nothing(t *testing.T) {
	c := NewClient(context.Background(), "tok", "Owner", "Repo", "main")
	_, err := c.Submit(context.Background(), Submission{Changes: map[string]*mapping.Mapping{"FR": mapping.New()}})
	if !errors.Is(err, ErrNothingToSubmit) {
		t.Fatalf("err = %v", err)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	if got := (&APIError{Status: 422}).Error(); got != "GitHub API error: 422" {
		t.Errorf("Error() = %q", got)
	}
	if got := (&APIError{Status: 422, Message: "Reference already exists"}).Error(); got != "Reference already exists" {
		t.Errorf("Error() = %q", got)
	}
}

func TestTitle(t *testing.T) {
	names := map[string]string{"FR": "French", "DE": "German"}
	cases := []struct {
		langs []string
		want  string
	}{
		{[]string{"FR"}, "Add/Update French translation"},
		{[]string{"DE", "FR", "RU"}, "Add/Update German, French, RU translations"},
		{[]string{"A", "B", "C", "D"}, "Add/Update translations for 4 languages"},
	}
	for _, tc := range cases {
		if got := Title(tc.langs, names); got != tc.want {
			t.Errorf("Title(%v) = %q, want %q", tc.langs, got, tc.want)
		}
	}
}

func TestBody(t *testing.T) {
	changes := map[string]*mapping.Mapping{
		"FR": mapping.FromPairs("UI_A", "a", "UI_B", "b", "Sandbox_X", "x"),
	}
	got := Body([]string{"FR"}, changes, map[string]string{"FR": "French"}, nil, "footer")
	for _, want := range []string{
		"- **French** (FR): 3 changed/new keys\n",
		"**French:**\n- Sandbox: 1 keys\n- UI: 2 keys\n",
		"---\nfooter\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("body missing %q:\n%s", want, got)
		}
	}
}

func TestCheckReadiness(t *testing.T) {
	changes := map[string]*mapping.Mapping{"FR": mapping.FromPairs("UI_A", "a")}
	if r := CheckReadiness(false, changes); r.CanSubmit || r.Reason != "Not connected to GitHub" {
		t.Errorf("unauthenticated = %+v", r)
	}
	if r := CheckReadiness(true, nil); r.CanSubmit || r.Reason != "No translations to submit" {
		t.Errorf("empty = %+v", r)
	}
	if r := CheckReadiness(true, changes); !r.CanSubmit {
		t.Errorf("ready = %+v", r)
	}
}
