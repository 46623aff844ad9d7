package model

import (
	"testing"
	"time"
)

func TestParseRetryAfter(t *testing.T) {
	cases := map[string]time.Duration{
		"":     0,
		"1":    time.Second,
		"0.5":  500 * time.Millisecond,
		"-1":   0,
		"soon": 0,
		" 3 ":  3 * time.Second,
	}
	for in, want := range cases {
		if got := ParseRetryAfter(in); got != want {
			t.Fatalf("ParseRetryAfter(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestCallMeta_FailedAndPayload(t *testing.T) {
	ok := CallMeta{Route: RoutePrimary, Model: "gpt-4o", Attempts: 2, ContextLimit: 30}
	if ok.Failed() {
		t.Fatal("primary route is not a failure")
	}
	p := ok.Payload()
	if p["route"] != RoutePrimary || p["attempts"] != 2 || p["context_limit"] != 30 {
		t.Fatalf("unexpected payload: %v", p)
	}
	if !(CallMeta{Route: RouteError}).Failed() {
		t.Fatal("error route must report failure")
	}
}
