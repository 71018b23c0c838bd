package entities

import "strings"

// ImageAsset is a downloaded image held in memory for the duration of
// a single request.
type ImageAsset struct {
	Data []byte
	MIME string
}

func (a *ImageAsset) Size() int64 {
	return int64(len(a.Data))
}

const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
	MIMEWebP = "image/webp"
)

func IsSupportedImageType(contentType string) bool {
	switch NormalizeMIME(contentType) {
	case MIMEPNG, MIMEJPEG, MIMEWebP:
		return true
	default:
		return false
	}
}

// NormalizeMIME lowercases a content type and drops any parameters,
// e.g. "image/PNG; charset=binary" becomes "image/png".
func NormalizeMIME(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

func ExtensionForMIME(contentType string) string {
	switch NormalizeMIME(contentType) {
	case MIMEPNG:
		return ".png"
	case MIMEJPEG:
		return ".jpg"
	case MIMEWebP:
		return ".webp"
	default:
		return ".bin"
	}
}
