package discord

import (
	"os"
	"regexp"
	"strings"
)

// maxMessageLen is Discord's hard cap per message.
const maxMessageLen = 2000

// splitMessage cuts content into sendable chunks, preferring to break at a
// newline, then at a space, before cutting mid-word. The limit is in
// characters, not bytes: Discord counts characters, and a byte cut would
// mangle multi-byte text.
func splitMessage(content string, maxLen int) []string {
	if content == "" {
		return nil
	}
	runes := []rune(content)
	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= maxLen {
			chunks = append(chunks, string(runes))
			break
		}
		cutAt := maxLen
		if idx := lastRune(runes[:maxLen], '\n'); idx > maxLen/2 {
			cutAt = idx + 1
		} else if idx := lastRune(runes[:maxLen], ' '); idx > maxLen/2 {
			cutAt = idx + 1
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cutAt]), "\n"))
		runes = runes[cutAt:]
	}
	return chunks
}

func lastRune(window []rune, r rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == r {
			return i
		}
	}
	return -1
}

var (
	bracketMarkerRe = regexp.MustCompile(`\[IMAGE_(?:MEDIA|FILE):([^\]\n]+)\]`)
	savedLineRe     = regexp.MustCompile(`(?m)^(?:Saved to|图片已保存)[:：]\s*(\S+)\s*$`)
	blankLinesRe    = regexp.MustCompile(`\n{3,}`)
)

// extractMediaMarkers pulls file-path markers that tools embed in their
// text output ([IMAGE_FILE:...], [IMAGE_MEDIA:...], "Saved to: ...") and
// returns the cleaned text plus the paths that actually exist on disk.
func extractMediaMarkers(content string) (string, []string) {
	var paths []string
	seen := make(map[string]bool)

	collect := func(matches [][]string) {
		for _, m := range matches {
			path := strings.TrimSpace(m[1])
			if path == "" || seen[path] {
				continue
			}
			if _, err := os.Stat(path); err != nil {
				continue
			}
			seen[path] = true
			paths = append(paths, path)
		}
	}

	collect(bracketMarkerRe.FindAllStringSubmatch(content, -1))
	collect(savedLineRe.FindAllStringSubmatch(content, -1))

	cleaned := bracketMarkerRe.ReplaceAllString(content, "")
	cleaned = savedLineRe.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(blankLinesRe.ReplaceAllString(cleaned, "\n\n"))
	return cleaned, paths
}
