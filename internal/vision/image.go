package vision

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
)

var ErrUnsupportedImage = errors.New("unsupported image type")

var acceptedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

// DataURL sniffs the image type of raw and encodes it as a base64 data URL.
func DataURL(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: empty upload", ErrUnsupportedImage)
	}
	mime := http.DetectContentType(raw)
	if !acceptedImageTypes[mime] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}
