package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestRandomStringIsRandom(t *testing.T) {
	a := GetLogToken()
	b := GetLogToken()
	if a == b {
		t.Fatal("strings are equal:", a, b)
	}
}

func TestSessionID(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := NewSessionID()

		if len(id) != SessionIDLength {
			t.Fatal("wrong length:", id)
		}

		seen := make(map[rune]bool)
		for _, c := range id {
			if !strings.ContainsRune(session_alphabet, c) {
				t.Fatal("character outside of alphabet:", id)
			}
			if seen[c] {
				t.Fatal("repeated character:", id)
			}
			seen[c] = true
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	l := New(buf, "test", LOGLEVEL_WARNINGS)

	l.Log(LOGLEVEL_INFO, "should not appear")
	l.Log(LOGLEVEL_ERRORS, "broken", 42)

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Error("info line logged at warning level:", out)
	}
	if !strings.Contains(out, "broken 42") {
		t.Error("error line missing:", out)
	}
	if l.IsLoggingEnabled(LOGLEVEL_DEBUG) || !l.IsLoggingEnabled(LOGLEVEL_WARNINGS) {
		t.Error("IsLoggingEnabled is inconsistent with level")
	}
}

func TestWithAttachesField(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	l := NewJSON(buf, "test", LOGLEVEL_DEBUG).With("session", "ABCDEF01")

	l.Logf(LOGLEVEL_DEBUG, "hello %s", "world")

	out := buf.String()
	if !strings.Contains(out, `"session":"ABCDEF01"`) || !strings.Contains(out, "hello world") {
		t.Error("unexpected output:", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"error": LOGLEVEL_ERRORS, "WARN": LOGLEVEL_WARNINGS, "warning": LOGLEVEL_WARNINGS,
		"errors": LOGLEVEL_ERRORS, "Warnings": LOGLEVEL_WARNINGS,
		"info": LOGLEVEL_INFO, "debug": LOGLEVEL_DEBUG, "none": LOGLEVEL_NONE}

	for s, want := range cases {
		got, err := ParseLevel(s)
		if err != nil || got != want {
			t.Error("ParseLevel", s, "=", got, err)
		}
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Log(LOGLEVEL_ERRORS, "nothing")
	if l.IsLoggingEnabled(LOGLEVEL_ERRORS) {
		t.Error("discard logger claims to log errors")
	}
}
