package session

import (
	"testing"
	"time"
)

func sampleSession() *Session {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC).Unix()
	return &Session{
		Provider:   "google",
		Subject:    "114093",
		Email:      "dev@example.com",
		Name:       "Dev Example",
		IP:         "203.0.113.7",
		UserAgent:  "curl/8.5.0",
		CreatedAt:  created,
		ExpiresAt:  created + 86400,
		LastSeenAt: created + 300,
	}
}

func TestCodecRoundTrip(t *testing.T) {
	want := sampleSession()

	blob, err := Encode(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if *got != *want {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestCodecRoundTripEmptyFields(t *testing.T) {
	want := &Session{Provider: "github", Subject: "1", CreatedAt: 100, ExpiresAt: 200, LastSeenAt: 100}

	blob, err := Encode(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *got != *want {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

// Older blobs carry no LastSeenAt; decoding must fall back to CreatedAt so
// idle-time logic stays monotone.
func TestCodecDecodeV1(t *testing.T) {
	want := sampleSession()

	blob, err := Encode(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	v1 := append([]byte{formatVersionV1}, blob[1:len(blob)-8]...)

	got, err := Decode(v1)
	if err != nil {
		t.Fatalf("decode v1: %v", err)
	}
	if got.LastSeenAt != want.CreatedAt {
		t.Errorf("v1 LastSeenAt = %d, want CreatedAt %d", got.LastSeenAt, want.CreatedAt)
	}
	if got.Subject != want.Subject || got.ExpiresAt != want.ExpiresAt {
		t.Errorf("v1 fields mismatch: %+v", got)
	}
}

func TestCodecRejectsBadInput(t *testing.T) {
	blob, err := Encode(sampleSession())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	cases := map[string][]byte{
		"empty":           nil,
		"unknown version": {9, 0, 0},
		"truncated body":  blob[:len(blob)/2],
		"version only":    {formatVersionCurrent},
	}
	for name, data := range cases {
		if _, err := Decode(data); err == nil {
			t.Errorf("%s: expected decode error", name)
		}
	}
}
