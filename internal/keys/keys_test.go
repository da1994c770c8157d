package keys

import "testing"

func TestJoinStrip(t *testing.T) {
	full := Join("app:chat", "user:42:profile")
	if full != "app:chat:user:42:profile" {
		t.Fatalf("Join = %q", full)
	}
	got, ok := Strip("app:chat", full)
	if !ok || got != "user:42:profile" {
		t.Fatalf("Strip = %q, %v", got, ok)
	}
	if _, ok := Strip("app:billing", full); ok {
		t.Fatalf("Strip accepted foreign namespace")
	}
}

func TestIsGlob(t *testing.T) {
	for pat, want := range map[string]bool{
		"user:42:profile": false,
		"user:*":          true,
		"user:?":          true,
		"user:[ab]":       true,
		"":                false,
	} {
		if got := IsGlob(pat); got != want {
			t.Errorf("IsGlob(%q) = %v, want %v", pat, got, want)
		}
	}
}

func TestGlobToRegexp(t *testing.T) {
	cases := []struct {
		pattern string
		key     string
		match   bool
	}{
		{"user:*", "user:42:profile", true},
		{"user:*", "post:42", false},
		{"user:*:profile", "user:42:profile", true},
		{"user:*:profile", "user:42:settings", false},
		{"user:4?", "user:42", true},
		{"user:4?", "user:402", false},
		{"user:[45]2", "user:42", true},
		{"user:[45]2", "user:62", false},
		{"user:42", "user:42", true},
		{"user:42", "user:421", false},
		{"user:1.2", "user:1.2", true},
		{"user:1.2", "user:1x2", false},
	}
	for _, tc := range cases {
		re, err := GlobToRegexp(tc.pattern)
		if err != nil {
			t.Fatalf("GlobToRegexp(%q): %v", tc.pattern, err)
		}
		if got := re.MatchString(tc.key); got != tc.match {
			t.Errorf("pattern %q vs key %q = %v, want %v", tc.pattern, tc.key, got, tc.match)
		}
	}
}
