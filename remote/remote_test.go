package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
)

const layout = "Contents/mods/Mod/42/media/lua/shared/Translate"

// fakeHost serves raw files from a path → content map and the contents API
// listing for the layout directory.
func fakeHost(t *testing.T, files map[string]string, listing string) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("User-Agent") != userAgent {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		if strings.HasPrefix(r.URL.Path, "/api/repos/") {
			if listing == "" {
				http.Error(w, "rate limited", http.StatusForbidden)
				return
			}
			_, _ = w.Write([]byte(listing))
			return
		}
		body, ok := files[strings.TrimPrefix(r.URL.Path, "/raw/owner/repo/main/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c := New("owner", "repo", "main", layout, []string{"IG_UI", "Sandbox", "UI"})
	c.RawBase = srv.URL + "/raw"
	c.APIBase = srv.URL + "/api"
	return c, &hits
}

func TestRawURL(t *testing.T) {
	c := New("TheOwner", "Repo", "master", "/a/b/", nil)
	want := "https://raw.githubusercontent.com/TheOwner/Repo/master/a/b/FR/UI_FR.txt"
	if got := c.RawURL("FR", "UI"); got != want {
		t.Fatalf("RawURL = %q, want %q", got, want)
	}
}

func TestFetchFile(t *testing.T) {
	c, _ := fakeHost(t, map[string]string{
		layout + "/FR/UI_FR.txt": "UI_FR = {\n    UI_A = \"a\",\n}\n",
	}, "")

	m, err := c.FetchFile(context.Background(), "FR", "UI")
	if err != nil {
		t.Fatal(err)
	}
	if m.Value("UI_A") != "a" {
		t.Fatalf("UI_A = %q", m.Value("UI_A"))
	}

	if _, err := c.FetchFile(context.Background(), "FR", "Sandbox"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing file error = %v, want ErrNotFound", err)
	}
}

func TestFetchLanguage_PartialFailure(t *testing.T) {
	c, hits := fakeHost(t, map[string]string{
		layout + "/DE/IG_UI_DE.txt": "IG_UI_DE = {\n    IG_UI_A = \"ig\",\n    UI_Dup = \"from ig\",\n}\n",
		layout + "/DE/UI_DE.txt":    "UI_DE = {\n    UI_Dup = \"from ui\",\n}\n",
	}, "")

	res := c.FetchLanguage(context.Background(), "DE")
	if hits.Load() != 3 {
		t.Errorf("requests = %d, want one per category", hits.Load())
	}
	if res.TotalKeys != 3 || res.Translations.Len() != 2 {
		t.Errorf("TotalKeys = %d, keys = %d", res.TotalKeys, res.Translations.Len())
	}
	if got := res.Translations.Value("UI_Dup"); got != "from ui" {
		t.Errorf("UI_Dup = %q, later category should win", got)
	}
	if !reflect.DeepEqual(res.Errors, []string{"Sandbox: file not found"}) {
		t.Errorf("Errors = %v", res.Errors)
	}
	if st := res.Categories["Sandbox"]; st.Status != "error" {
		t.Errorf("Sandbox status = %+v", st)
	}
	if st := res.Categories["IG_UI"]; st.Status != "loaded" || st.KeyCount != 2 {
		t.Errorf("IG_UI status = %+v", st)
	}
	if res.AllFailed() {
		t.Error("AllFailed() = true")
	}
}

func TestFetchLanguage_AllFailed(t *testing.T) {
	c, _ := fakeHost(t, nil, "")
	res := c.FetchLanguage(context.Background(), "EN")
	if !res.AllFailed() || res.Translations.Len() != 0 {
		t.Fatalf("res = %+v", res)
	}
}

func TestFetchLanguages(t *testing.T) {
	c, _ := fakeHost(t, map[string]string{
		layout + "/FR/UI_FR.txt": "UI_FR = {\n UI_A = \"fr\",\n}",
		layout + "/RU/UI_RU.txt": "UI_RU = {\n UI_A = \"ru\",\n}",
	}, "")
	got := c.FetchLanguages(context.Background(), []string{"FR", "RU"})
	if len(got) != 2 || got["RU"].Translations.Value("UI_A") != "ru" {
		t.Fatalf("FetchLanguages = %+v", got)
	}
	if !c.LanguageExists(context.Background(), "FR") || c.LanguageExists(context.Background(), "JP") {
		t.Fatal("LanguageExists mismatch")
	}
}

func TestDiscoverLanguages(t *testing.T) {
	listing := `[
		{"name":"EN","type":"dir"},
		{"name":"PTBR","type":"dir"},
		{"name":"README.txt","type":"file"},
		{"name":"old","type":"dir"},
		{"name":"TOOLONG","type":"dir"}
	]`
	c, _ := fakeHost(t, nil, listing)
	got, err := c.DiscoverLanguages(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"EN", "PTBR"}) {
		t.Fatalf("DiscoverLanguages = %v", got)
	}
}

func TestDiscoverLanguages_HTTPError(t *testing.T) {
	c, _ := fakeHost(t, nil, "")
	if _, err := c.DiscoverLanguages(context.Background()); err == nil || !strings.Contains(err.Error(), "HTTP 403") {
		t.Fatalf("err = %v, want HTTP 403", err)
	}
}

func TestFetchManifest(t *testing.T) {
	c, _ := fakeHost(t, map[string]string{
		"docs/languages.json": `{"zomboidLanguages":[{"code":"BG","name":"Bulgarian"}]}`,
	}, "")
	m, err := c.FetchManifest(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(m.ZomboidLanguages) != 1 || m.ZomboidLanguages[0].Code != "BG" {
		t.Fatalf("manifest = %+v", m)
	}
}
