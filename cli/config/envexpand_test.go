package config

import "testing"

func TestExpandEnv_FromProcessEnv(t *testing.T) {
	t.Setenv("TEST_STRATA_VAR", "hello")

	if got := ExpandEnv("value: ${TEST_STRATA_VAR}"); got != "value: hello" {
		t.Errorf("got %q", got)
	}
}

func TestExpand(t *testing.T) {
	env := map[string]string{
		"SET":   "value",
		"EMPTY": "",
		"HOST":  "cache",
		"PORT":  "6379",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	tests := []struct {
		name, in, want string
	}{
		{"set", "x: ${SET}", "x: value"},
		{"unset", "x: ${MISSING}", "x: "},
		{"default when unset", "x: ${MISSING:-fallback}", "x: fallback"},
		{"default ignored when set", "x: ${SET:-fallback}", "x: value"},
		{"default when empty", "x: ${EMPTY:-fallback}", "x: fallback"},
		{"empty default", "x: ${MISSING:-}", "x: "},
		{"multiple", "redis://${HOST}:${PORT}/0", "redis://cache:6379/0"},
		{"bare dollar untouched", "password: pa$$word $SET", "password: pa$$word $SET"},
		{"no refs", "plain: text", "plain: text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expand(tt.in, lookup); got != tt.want {
				t.Errorf("expand(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
