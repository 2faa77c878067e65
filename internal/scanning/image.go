package scanning

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// ErrEmptyImage is returned when an Image carries neither bytes nor a URL
var ErrEmptyImage = errors.New("image has no data and no url")

// maxRemoteImageSize caps images fetched from http(s) URLs
const maxRemoteImageSize = 50 << 20

// Image is an uploaded receipt photo, either byte-backed or a resolvable URL.
// URL may be a data URL or an http(s) URL.
type Image struct {
	Data        []byte
	ContentType string
	Filename    string
	URL         string
}

// resolve returns the image bytes and content type
func (img Image) resolve(ctx context.Context, client *http.Client) ([]byte, string, error) {
	if len(img.Data) > 0 {
		return img.Data, normalizeContentType(img.ContentType), nil
	}
	if img.URL == "" {
		return nil, "", ErrEmptyImage
	}
	if strings.HasPrefix(img.URL, "data:") {
		return DecodeDataURL(img.URL)
	}
	return fetchImage(ctx, client, img.URL)
}

func fetchImage(ctx context.Context, client *http.Client, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("parsing image url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported image url scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetching image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetching image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteImageSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading image: %w", err)
	}
	if len(data) > maxRemoteImageSize {
		return nil, "", fmt.Errorf("image exceeds %d bytes", maxRemoteImageSize)
	}
	return data, normalizeContentType(resp.Header.Get("Content-Type")), nil
}

// EncodeDataURL turns image bytes into a self-contained data URL suitable for
// storing alongside a record. An empty content type is sniffed from the data.
func EncodeDataURL(data []byte, contentType string) string {
	contentType = normalizeContentType(contentType)
	if contentType == "" {
		contentType = sniffContentType(data)
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL is the inverse of EncodeDataURL. Percent-encoded (non base64)
// payloads are accepted as well.
func DecodeDataURL(dataURL string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return nil, "", fmt.Errorf("not a data url")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data url: missing payload")
	}

	isBase64 := false
	if m, found := strings.CutSuffix(meta, ";base64"); found {
		meta = m
		isBase64 = true
	}
	contentType := normalizeContentType(meta)
	if contentType == "" {
		contentType = "text/plain"
	}

	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			// some encoders drop padding
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
			if err != nil {
				return nil, "", fmt.Errorf("decoding base64 payload: %w", err)
			}
		}
		return data, contentType, nil
	}

	unescaped, err := url.PathUnescape(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decoding data url payload: %w", err)
	}
	return []byte(unescaped), contentType, nil
}

// normalizeContentType lowercases the media type and drops parameters
func normalizeContentType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// sniffContentType detects the MIME type of image bytes.
// http.DetectContentType does not know HEIC.
func sniffContentType(data []byte) string {
	if isHEICFormat(data) {
		return "image/heic"
	}
	return normalizeContentType(http.DetectContentType(data))
}
