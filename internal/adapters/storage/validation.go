package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"claims_backend/platform/apperr"
)

var imageContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/heic": true,
	"image/tiff": true,
}

var documentContentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"text/plain":      true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

func normalizeContentType(contentType string) string {
	return strings.TrimSpace(strings.ToLower(strings.Split(contentType, ";")[0]))
}

// ValidateContentType checks the content type against the kind's allow list.
func ValidateContentType(contentType string, kind FileKind) error {
	normalized := normalizeContentType(contentType)
	allowed := documentContentTypes
	if kind == KindImage {
		allowed = imageContentTypes
	}
	if !allowed[normalized] {
		return invalidFile(fmt.Sprintf("content type %q is not allowed for %s files", contentType, kind))
	}
	return nil
}

// ValidateFileSize checks a size against the configured maximum.
func ValidateFileSize(sizeBytes, maxBytes int64) error {
	if sizeBytes <= 0 {
		return invalidFile("file is empty")
	}
	if maxBytes > 0 && sizeBytes > maxBytes {
		return invalidFile(fmt.Sprintf("file size %d bytes exceeds maximum allowed size of %d bytes", sizeBytes, maxBytes))
	}
	return nil
}

// CleanPath rejects absolute or escaping object keys and returns the canonical key.
func CleanPath(p string) (string, error) {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		return "", invalidFile("file path is required")
	}
	if strings.HasPrefix(trimmed, "/") || strings.Contains(trimmed, "\\") {
		return "", invalidFile(fmt.Sprintf("file path %q must be a relative object key", p))
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", invalidFile(fmt.Sprintf("file path %q escapes the claim bucket", p))
	}
	return cleaned, nil
}

// contentTypeFromExtension guesses a content type for path-only validation.
func contentTypeFromExtension(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return "application/octet-stream"
}

// PathValidator validates references syntactically when no object store is
// configured. Content type is inferred from the extension.
type PathValidator struct{}

func (PathValidator) Validate(_ context.Context, p string, kind FileKind) (FileInfo, error) {
	cleaned, err := CleanPath(p)
	if err != nil {
		return FileInfo{}, err
	}
	contentType := contentTypeFromExtension(cleaned)
	if err := ValidateContentType(contentType, kind); err != nil {
		return FileInfo{}, err
	}
	return FileInfo{Path: cleaned, ContentType: contentType}, nil
}

func invalidFile(message string) error {
	return apperr.Validation(message).WithCode(apperr.CodeInvalidFile)
}
