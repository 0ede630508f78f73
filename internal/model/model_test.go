package model

import (
	"errors"
	"testing"
	"time"
)

func TestEventValidate(t *testing.T) {
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		ev        Event
		wantField string
	}{
		{
			name: "valid relative",
			ev:   Event{Name: "Arena", Week: 2, Day: 3, Days: 2},
		},
		{
			name: "valid absolute ignores week",
			ev:   Event{Name: "Festival", Start: day, End: day.AddDate(0, 0, 3), Days: 1},
		},
		{
			name:      "missing name",
			ev:        Event{Week: 1, Days: 1},
			wantField: "name",
		},
		{
			name:      "week zero",
			ev:        Event{Name: "x", Week: 0, Days: 1},
			wantField: "week",
		},
		{
			name:      "day out of range",
			ev:        Event{Name: "x", Week: 1, Day: 7, Days: 1},
			wantField: "day",
		},
		{
			name:      "zero days",
			ev:        Event{Name: "x", Week: 1},
			wantField: "days",
		},
		{
			name:      "negative repeat",
			ev:        Event{Name: "x", Week: 1, Days: 1, RepeatWeeks: -2},
			wantField: "repeat_weeks",
		},
		{
			name:      "end before start",
			ev:        Event{Name: "x", Start: day, End: day.AddDate(0, 0, -1), Days: 1},
			wantField: "end",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ev.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() = %v, want *ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}
}

func TestEventNormalize(t *testing.T) {
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	ev := Event{Name: "  Arena  ", Reward: " gems ", Start: day}
	ev.Normalize()

	if ev.Name != "Arena" || ev.Reward != "gems" {
		t.Errorf("text not trimmed: %q / %q", ev.Name, ev.Reward)
	}
	if ev.Days != 1 {
		t.Errorf("Days = %d, want 1", ev.Days)
	}
	if !ev.End.Equal(day) {
		t.Errorf("End = %v, want start date", ev.End)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "2025-01-06", want: "2025-01-06"},
		{in: "2025-01-06T10:00:00Z", want: "2025-01-06"},
		{in: "", want: ""},
		{in: "06/01/2025", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDate(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseDate(%q): %v", tt.in, err)
		}
		if FormatDate(got) != tt.want {
			t.Errorf("ParseDate(%q) = %q, want %q", tt.in, FormatDate(got), tt.want)
		}
	}
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	s := Session{ExpiresAt: now}
	if !s.Expired(now) {
		t.Error("session expiring now should be expired")
	}
	if s.Expired(now.Add(-time.Second)) {
		t.Error("session should still be valid a second earlier")
	}
}
