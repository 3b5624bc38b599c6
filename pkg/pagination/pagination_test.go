package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCursorRoundTrip(t *testing.T) {
	t.Parallel()

	want := Cursor{
		CreatedAt: time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC),
		ID:        uuid.New(),
	}

	got, err := ParseCursor(EncodeCursor(want))
	if err != nil {
		t.Fatalf("parse cursor: %v", err)
	}
	if got == nil {
		t.Fatal("expected cursor, got nil")
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Fatalf("created_at = %s, want %s", got.CreatedAt, want.CreatedAt)
	}
	if got.ID != want.ID {
		t.Fatalf("id = %s, want %s", got.ID, want.ID)
	}
}

func TestParseCursorEmpty(t *testing.T) {
	t.Parallel()

	for _, value := range []string{"", "   "} {
		cursor, err := ParseCursor(value)
		if err != nil {
			t.Fatalf("ParseCursor(%q): %v", value, err)
		}
		if cursor != nil {
			t.Fatalf("ParseCursor(%q) = %+v, want nil", value, cursor)
		}
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		value string
	}{
		{"not base64", "!!not-base64!!"},
		{"missing separator", base64.StdEncoding.EncodeToString([]byte("no-pipe-here"))},
		{"bad timestamp", base64.StdEncoding.EncodeToString([]byte("yesterday|" + uuid.NewString()))},
		{"bad uuid", base64.StdEncoding.EncodeToString([]byte(time.Now().UTC().Format(time.RFC3339Nano) + "|not-a-uuid"))},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if _, err := ParseCursor(tc.value); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNormalizeLimit(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want int
	}{
		{0, DefaultLimit},
		{-5, DefaultLimit},
		{1, 1},
		{MaxLimit, MaxLimit},
		{500, MaxLimit},
	}
	for _, tc := range cases {
		if got := NormalizeLimit(tc.in); got != tc.want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestLimitWithBuffer(t *testing.T) {
	t.Parallel()

	if got := LimitWithBuffer(10); got != 11 {
		t.Fatalf("LimitWithBuffer(10) = %d", got)
	}
	if got := LimitWithBuffer(0); got != DefaultLimit+1 {
		t.Fatalf("LimitWithBuffer(0) = %d", got)
	}
}
