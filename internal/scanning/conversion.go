package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// imageFormat is the container format of an uploaded receipt
type imageFormat int

const (
	formatOther imageFormat = iota
	formatPNG
	formatPDF
	formatHEIC
)

// detectFormat classifies receipt bytes, preferring magic bytes over the declared MIME type
func detectFormat(data []byte, mimeType string) imageFormat {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return formatPDF
	case isHEICFormat(data):
		return formatHEIC
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return formatPNG
	}

	switch {
	case mimeType == "application/pdf":
		return formatPDF
	case strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif"):
		return formatHEIC
	case mimeType == "image/png":
		return formatPNG
	}
	return formatOther
}

// isHEICFormat checks for an ftyp box with a HEIC/HEIF brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// renderPDF rasterizes the first page; receipts are almost always single page
func renderPDF(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// toPNG converts a receipt in any supported format to PNG.
// The returned bool reports whether a conversion happened.
func toPNG(data []byte, mimeType string) ([]byte, bool, error) {
	var (
		img image.Image
		err error
	)

	switch detectFormat(data, mimeType) {
	case formatPNG:
		return data, false, nil
	case formatPDF:
		img, err = renderPDF(data)
	case formatHEIC:
		img, err = heic.Decode(bytes.NewReader(data))
		if err != nil {
			err = fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			err = fmt.Errorf("decoding image (supported: JPEG, PNG, GIF, HEIC, PDF): %w", err)
		}
	}
	if err != nil {
		return nil, false, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, false, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), true, nil
}
