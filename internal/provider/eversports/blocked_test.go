package eversports

import (
	"encoding/json"
	"testing"
)

func TestBlockedSetVetoes(t *testing.T) {
	blocked := blockedSet{
		{date: "2025-06-05", startMinute: 810, court: "90"}: {}, // 13:30
	}

	tests := []struct {
		name  string
		date  string
		court string
		start int
		end   int
		want  bool
	}{
		{"exact window", "2025-06-05", "90", 810, 840, true},
		{"span covering the block", "2025-06-05", "90", 780, 870, true},
		{"starts inside the block", "2025-06-05", "90", 810, 900, true},
		{"ends before the block", "2025-06-05", "90", 720, 810, false},
		{"starts after the block", "2025-06-05", "90", 840, 900, false},
		{"other court", "2025-06-05", "91", 780, 870, false},
		{"other date", "2025-06-06", "90", 780, 870, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := blocked.vetoes(tt.date, tt.court, tt.start, tt.end)
			if got != tt.want {
				t.Errorf("vetoes(%s %s %d-%d) = %v, want %v", tt.date, tt.court, tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestParseClockMinutes(t *testing.T) {
	tests := []struct {
		raw   string
		want  int
		valid bool
	}{
		{"0000", 0, true},
		{"0930", 570, true},
		{"1330", 810, true},
		{"2359", 1439, true},
		{"2460", 0, false},
		{"930", 0, false},
		{"ab30", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := parseClockMinutes(tt.raw)
		if ok != tt.valid {
			t.Errorf("parseClockMinutes(%q) ok = %v, want %v", tt.raw, ok, tt.valid)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("parseClockMinutes(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestCourtIdentUnmarshal(t *testing.T) {
	var payload blockedFeedResponse
	raw := `{"slots":[
		{"date":"2025-06-05","start":"0900","court":"abc"},
		{"date":"2025-06-05","start":"0930","court":42}
	]}`

	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if string(payload.Slots[0].Court) != "abc" {
		t.Errorf("string court = %q", payload.Slots[0].Court)
	}
	if string(payload.Slots[1].Court) != "42" {
		t.Errorf("numeric court = %q", payload.Slots[1].Court)
	}
}

func TestMalformedFeedEntriesSkipped(t *testing.T) {
	raw := `{"slots":[
		{"date":"2025-06-05","start":"bad","court":"1"},
		{"date":"","start":"0900","court":"1"},
		{"date":"2025-06-05","start":"0900"}
	]}`

	var payload blockedFeedResponse
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	blocked := make(blockedSet)
	for _, entry := range payload.Slots {
		startMinute, ok := parseClockMinutes(entry.Start)
		if !ok || entry.Court == "" || entry.Date == "" {
			continue
		}
		blocked[blockedKey{date: entry.Date, startMinute: startMinute, court: string(entry.Court)}] = struct{}{}
	}

	if len(blocked) != 0 {
		t.Errorf("expected all malformed entries skipped, got %d", len(blocked))
	}
}
