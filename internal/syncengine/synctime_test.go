package syncengine

import (
	"testing"
	"time"
)

func TestSyncTimeRoundTrip(t *testing.T) {
	in := time.Date(2026, 3, 5, 12, 30, 45, 123000000, time.UTC)
	s := FormatSyncTime(in)
	out, err := ParseSyncTime(s)
	if err != nil {
		t.Fatalf("ParseSyncTime(%q): %v", s, err)
	}
	if !in.Equal(out) {
		t.Fatalf("round trip mismatch: %v != %v", in, out)
	}
}

func TestSyncTimeFormatIsUTC(t *testing.T) {
	loc := time.FixedZone("test", 3600)
	in := time.Date(2026, 1, 1, 1, 0, 0, 0, loc)
	s := FormatSyncTime(in)
	if s[len(s)-1] != 'Z' {
		t.Fatalf("expected trailing Z, got %q", s)
	}
}

func TestItemUpdatedAtMissingOrUnparsable(t *testing.T) {
	if _, ok := itemUpdatedAt(Item{}); ok {
		t.Error("missing __updatedAt should report !ok")
	}
	if _, ok := itemUpdatedAt(Item{SystemFieldUpdatedAt: "not-a-date"}); ok {
		t.Error("unparsable __updatedAt should report !ok")
	}
	if _, ok := itemUpdatedAt(Item{SystemFieldUpdatedAt: ""}); ok {
		t.Error("empty __updatedAt should report !ok")
	}
	ts := FormatSyncTime(time.Now().UTC())
	got, ok := itemUpdatedAt(Item{SystemFieldUpdatedAt: ts})
	if !ok {
		t.Fatal("valid __updatedAt should report ok")
	}
	want, _ := ParseSyncTime(ts)
	if !got.Equal(want) {
		t.Errorf("itemUpdatedAt = %v, want %v", got, want)
	}
}
