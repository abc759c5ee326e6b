package browser

import (
	"strings"
	"testing"
)

func TestDownloadFilename(t *testing.T) {
	tests := []struct {
		url, want string
	}{
		{"https://example.com/files/report.pdf", "report.pdf"},
		{"https://example.com/files/report.pdf?token=abc", "report.pdf"},
		{"https://example.com/img.png#section", "img.png"},
	}
	for _, tt := range tests {
		if got := downloadFilename(tt.url); got != tt.want {
			t.Errorf("downloadFilename(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}

	// No usable path component: fall back to a generated name.
	for _, u := range []string{"https://example.com/", "https://example.com"} {
		if got := downloadFilename(u); !strings.HasPrefix(got, "download_") {
			t.Errorf("downloadFilename(%q) = %q", u, got)
		}
	}
}
