package browser

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
)

const maxDownloadSize = 100 << 20

// Download fetches a URL with the active page's cookies and saves it under
// dir. The cookies matter: most files worth downloading sit behind the
// login session the page already holds.
func (c *Controller) Download(rawURL, dir string) (string, error) {
	page, err := c.ActivePage()
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(rawURL, "/") {
		if info, err := page.Info(); err == nil {
			rawURL = resolveRelativeURL(info.URL, rawURL)
		}
	}

	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	if cookies, err := page.Cookies(nil); err == nil {
		var pairs []string
		for _, ck := range cookies {
			pairs = append(pairs, ck.Name+"="+ck.Value)
		}
		if len(pairs) > 0 {
			req.Header.Set("Cookie", strings.Join(pairs, "; "))
		}
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download: status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, downloadFilename(rawURL))

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	n, err := io.Copy(f, io.LimitReader(resp.Body, maxDownloadSize))
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("download: %w", err)
	}
	return fmt.Sprintf("%s (%d bytes)", path, n), nil
}

// downloadFilename derives a local filename from a URL, falling back to a
// timestamped name when the path has none.
func downloadFilename(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if name := path.Base(u.Path); name != "" && name != "." && name != "/" {
			return name
		}
	}
	return fmt.Sprintf("download_%d", time.Now().Unix())
}

// Upload attaches a local file to a file input. Target may be a snapshot
// ref pointing at the input; with no target the first file input on the
// page is used.
func (c *Controller) Upload(target, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("file not found: %s", path)
	}

	page, err := c.ActivePage()
	if err != nil {
		return "", err
	}

	var el *rod.Element
	strategy := "file-input"
	if entry, ok := c.currentRefs().Get(target); ok && entry.BackendID != 0 {
		if resolved, err := elementFromBackendID(page, entry.BackendID); err == nil {
			el = resolved
			strategy = "ax-node"
		}
	}
	if el == nil {
		el, err = page.Timeout(5 * time.Second).Element(`input[type=file]`)
		if err != nil {
			return "", fmt.Errorf("no file input found")
		}
	}

	if err := el.SetFiles([]string{abs}); err != nil {
		return "", fmt.Errorf("set files: %w", err)
	}
	waitSettle(page)
	return fmt.Sprintf("[VERIFIED] Attached %s via %s", filepath.Base(abs), strategy), nil
}
