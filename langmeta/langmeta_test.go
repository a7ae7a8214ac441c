package langmeta

import "testing"

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "pt_br", want: "pt-BR"},
		{in: " EN-us ", want: "en-US"},
		{in: "ru", want: "ru"},
		{in: "", want: ""},
	}

	for _, tc := range cases {
		got := canonicalize(tc.in)
		if got != tc.want {
			t.Fatalf("canonicalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTag(t *testing.T) {
	cases := map[string]string{"PTBR": "pt-BR", "CH": "zh-TW", "ua": "uk", "FR": "fr"}
	for in, want := range cases {
		if got := Tag(in); got != want {
			t.Errorf("Tag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Run("game code", func(t *testing.T) {
		got := Resolve("PTBR")
		if got.Name != "Português (Brasil)" || got.Flag == "" {
			t.Fatalf("unexpected result: %#v", got)
		}
	})

	t.Run("normalized tag", func(t *testing.T) {
		got := Resolve("zh_tw")
		if got.Name != "繁體中文" {
			t.Fatalf("unexpected result: %#v", got)
		}
	})

	t.Run("base fallback", func(t *testing.T) {
		got := Resolve("fr-CA")
		if got.Name != "Français" || got.Flag != "🇫🇷" {
			t.Fatalf("unexpected fallback result: %#v", got)
		}
	})

	t.Run("unknown passthrough", func(t *testing.T) {
		got := Resolve("XX")
		if got.Name != "XX" || got.Flag != "" {
			t.Fatalf("unexpected unknown result: %#v", got)
		}
	})
}

func TestBuiltinHasMetadata(t *testing.T) {
	for _, l := range Builtin {
		if m := Resolve(l.Code); m.Flag == "" {
			t.Errorf("no metadata for %s", l.Code)
		}
	}
}

func TestKnownAndName(t *testing.T) {
	known := Known([]Language{{Code: "EN", Name: "Other"}, {Code: "BG", Name: "Bulgarian"}})
	if len(known) != len(Builtin)+1 {
		t.Fatalf("len(Known) = %d, want %d", len(known), len(Builtin)+1)
	}
	if got := Name("EN", known); got != "English" {
		t.Errorf("Name(EN) = %q, built-in name should win", got)
	}
	if got := Name("BG", known); got != "Bulgarian" {
		t.Errorf("Name(BG) = %q", got)
	}
	if got := Name("ZZ", known); got != "ZZ" {
		t.Errorf("Name(ZZ) = %q", got)
	}
}
