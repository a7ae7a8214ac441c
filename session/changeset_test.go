package session

import (
	"context"
	"reflect"
	"testing"

	"github.com/bsj-tools/transkit/mapping"
)

func TestDiff(t *testing.T) {
	working := mapping.FromPairs("UI_A", "same", "UI_B", "changed", "UI_C", "new", "UI_D", "  ")
	snapshot := mapping.FromPairs("UI_A", "same", "UI_B", "old", "UI_D", "x")

	got := Diff(working, snapshot)
	if !reflect.DeepEqual(got.Keys(), []string{"UI_B", "UI_C"}) {
		t.Fatalf("Diff keys = %v", got.Keys())
	}
}

func TestComputeChangeSet(t *testing.T) {
	f := newFakeFetcher()
	s, cache := newTestSession(t, f)
	mustInit(t, s)
	ctx := context.Background()

	// Work saved in an earlier session for a language never loaded now.
	if err := cache.SaveTranslations("RU", mapping.FromPairs("UI_A", "Привет")); err != nil {
		t.Fatal(err)
	}

	if err := s.SwitchLanguage(ctx, "FR"); err != nil {
		t.Fatal(err)
	}
	if err := s.Update("UI_B", "Monde"); err != nil {
		t.Fatal(err)
	}

	if err := s.SwitchLanguage(ctx, "BG"); err != nil {
		t.Fatal(err)
	}
	if err := s.Update("UI_A", "Здравей %1"); err != nil {
		t.Fatal(err)
	}

	// BG is still pending in the autosave timer.
	changes, err := s.ComputeChangeSet()
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 2 {
		t.Fatalf("languages = %v", keysOf(changes))
	}
	if fr := changes["FR"]; !reflect.DeepEqual(fr.Map(), map[string]string{"UI_B": "Monde"}) {
		t.Errorf("FR changes = %v", fr.Map())
	}
	if bg := changes["BG"]; bg.Value("UI_A") != "Здравей %1" {
		t.Errorf("BG changes = %v", bg.Map())
	}
	if _, ok := changes["RU"]; ok {
		t.Error("RU has no snapshot and must be skipped")
	}
}

func TestComputeChangeSet_Unchanged(t *testing.T) {
	f := newFakeFetcher()
	s, _ := newTestSession(t, f)
	mustInit(t, s)

	if err := s.SwitchLanguage(context.Background(), "FR"); err != nil {
		t.Fatal(err)
	}
	changes, err := s.ComputeChangeSet()
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 0 {
		t.Fatalf("changes = %v", keysOf(changes))
	}
}

func keysOf(m map[string]*mapping.Mapping) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	return out
}
