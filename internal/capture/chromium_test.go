package capture

import (
	"context"
	"testing"
)

func TestViewerURL(t *testing.T) {
	tests := []struct {
		base, server string
		offset       int
		want         string
		wantErr      bool
	}{
		{"http://127.0.0.1:8080", "abc", 0, "http://127.0.0.1:8080/?server=abc", false},
		{"https://weeks.example.com/some/path", "a b", -1, "https://weeks.example.com/?offset=-1&server=a+b", false},
		{"", "abc", 0, "", true},
		{"http://x", "", 0, "", true},
		{"/relative", "abc", 0, "", true},
	}

	for _, tt := range tests {
		got, err := ViewerURL(tt.base, tt.server, tt.offset)
		if (err != nil) != tt.wantErr {
			t.Errorf("ViewerURL(%q, %q) err = %v", tt.base, tt.server, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ViewerURL(%q, %q, %d) = %q, want %q", tt.base, tt.server, tt.offset, got, tt.want)
		}
	}
}

func TestSnapshotValidates(t *testing.T) {
	if err := Snapshot(context.Background(), Options{BaseURL: "http://x", ServerID: "s"}); err == nil {
		t.Error("missing output path should fail before launching a browser")
	}
}
