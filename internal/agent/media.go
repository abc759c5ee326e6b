package agent

import (
	"bytes"
	"encoding/base64"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/nanocat-ai/nanocat/internal/providers"
)

const (
	maxImageDim   = 1280    // longest edge after resize
	maxImageBytes = 4 << 20 // re-encode below this before sending
	jpegQuality   = 85
)

// encodeMediaImages loads attachment paths, resizes and re-encodes them as
// JPEG, and returns base64 image parts for a vision request. Non-image
// paths are skipped.
func encodeMediaImages(paths []string) []providers.ImageContent {
	var images []providers.ImageContent
	for _, path := range paths {
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if !strings.HasPrefix(mimeType, "image/") {
			continue
		}
		data, err := processImage(path)
		if err != nil {
			slog.Warn("skipping attachment", "path", path, "error", err)
			continue
		}
		images = append(images, providers.ImageContent{
			MimeType: "image/jpeg",
			Data:     base64.StdEncoding.EncodeToString(data),
		})
	}
	return images
}

// processImage resizes an image to fit maxImageDim and compresses it as
// JPEG, stepping quality down until it fits maxImageBytes.
func processImage(path string) ([]byte, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxImageDim || bounds.Dy() > maxImageDim {
		img = imaging.Fit(img, maxImageDim, maxImageDim, imaging.Lanczos)
	}

	quality := jpegQuality
	for {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, err
		}
		if buf.Len() <= maxImageBytes || quality <= 10 {
			return buf.Bytes(), nil
		}
		quality -= 10
	}
}
