package receipt

import "time"

// StoredReceipt is the metadata for one uploaded receipt image. One FileID
// maps to exactly one underlying file for its lifetime.
type StoredReceipt struct {
	FileID      string    `json:"file_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// allowedTypes is the full set of accepted upload MIME types, mapped to the
// canonical stored extension.
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/heic": ".heic",
	"image/heif": ".heif",
}

// contentTypes resolves a stored file's extension back to a content type
// when serving bytes.
var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
}

// ContentTypeForExtension maps a filename extension to a content type,
// defaulting to application/octet-stream.
func ContentTypeForExtension(ext string) string {
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// extensionForType maps an accepted MIME type to the canonical stored
// extension. The second return is false for disallowed types.
func extensionForType(contentType string) (string, bool) {
	ext, ok := allowedTypes[contentType]
	return ext, ok
}
