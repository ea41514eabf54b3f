package constants

import "strings"

const (
	MediaTypePDF  = "application/pdf"
	MediaTypePNG  = "image/png"
	MediaTypeJPEG = "image/jpeg"
)

// MaxAttachmentMB caps raw document bytes sent to a provider.
const MaxAttachmentMB = 20

// AttachmentMediaTypes maps allowed attachment extensions to media types.
var AttachmentMediaTypes = map[string]string{
	"pdf":  MediaTypePDF,
	"png":  MediaTypePNG,
	"jpg":  MediaTypeJPEG,
	"jpeg": MediaTypeJPEG,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MediaTypeForExt returns the attachment media type for ext, or "" if not allowed.
func MediaTypeForExt(ext string) string {
	return AttachmentMediaTypes[NormalizeExt(ext)]
}
