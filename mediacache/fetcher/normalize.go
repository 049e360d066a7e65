// Package fetcher retrieves remote media and turns it into the inline payload
// kept by the cache: a base64 data URL.
package fetcher

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"mime"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const defaultJPEGQuality = 85

var rasterTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
	"image/tiff": true,
}

// Markup bodies on a 2xx are error or login pages, never media.
var markupTypes = map[string]bool{
	"text/html":             true,
	"application/xhtml+xml": true,
}

// Normalizer converts fetched bytes into a data URL. Raster images are
// validated and, when MaxDimension is set, downscaled to fit inside a
// MaxDimension x MaxDimension box.
type Normalizer struct {
	MaxDimension int
	JPEGQuality  int
}

// Normalize returns the data URL for body. Undecodable raster images and
// HTML pages are an error; other content types are inlined untouched.
func (n Normalizer) Normalize(body []byte, contentType string) (string, error) {
	if len(body) == 0 {
		return "", fmt.Errorf("empty body")
	}

	mediaType := parseMediaType(contentType)
	if mediaType == "" || mediaType == "application/octet-stream" || mediaType == "binary/octet-stream" {
		mediaType = parseMediaType(http.DetectContentType(body))
	}
	if markupTypes[mediaType] {
		return "", fmt.Errorf("unexpected %s body", mediaType)
	}
	if !rasterTypes[mediaType] {
		return DataURL(mediaType, body), nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("malformed %s body: %w", mediaType, err)
	}
	if n.MaxDimension <= 0 || (cfg.Width <= n.MaxDimension && cfg.Height <= n.MaxDimension) {
		return DataURL(mediaType, body), nil
	}

	img, err := imaging.Decode(bytes.NewReader(body), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("malformed %s body: %w", mediaType, err)
	}
	img = imaging.Fit(img, n.MaxDimension, n.MaxDimension, imaging.Lanczos)

	var buf bytes.Buffer
	outType := "image/png"
	if mediaType == "image/jpeg" {
		outType = "image/jpeg"
		quality := n.JPEGQuality
		if quality <= 0 {
			quality = defaultJPEGQuality
		}
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	} else {
		err = imaging.Encode(&buf, img, imaging.PNG)
	}
	if err != nil {
		return "", fmt.Errorf("failed to re-encode image: %w", err)
	}
	return DataURL(outType, buf.Bytes()), nil
}

// DataURL builds a base64 data URL.
func DataURL(mediaType string, body []byte) string {
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(body)
}

// DecodeDataURL splits a base64 data URL into its media type and bytes.
func DecodeDataURL(payload string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(payload, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URL")
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("data URL without payload")
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return parseMediaType(mediaType), []byte(data), nil
	}
	body, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return parseMediaType(mediaType), body, nil
}

func parseMediaType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mt
}
