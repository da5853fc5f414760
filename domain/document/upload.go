package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/VozVule/local-knowledge/domain/persistence"

	"github.com/gabriel-vasile/mimetype"
)

// MaxSizeBytes is the largest accepted upload
const MaxSizeBytes = 15 * 1024 * 1024

const fallbackMimeType = "application/octet-stream"

var allowedMimeTypes = map[string]struct{}{
	"application/pdf": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"text/markdown":   {},
	"text/x-markdown": {},
	"text/plain":      {},
}

var allowedExtensions = map[string]struct{}{
	".pdf":  {},
	".docx": {},
	".md":   {},
	".txt":  {},
}

// UploadError is a validation failure the client can fix
type UploadError struct {
	Message    string
	StatusCode int
}

func (e *UploadError) Error() string {
	return e.Message
}

func invalid(message string) *UploadError {
	return &UploadError{Message: message, StatusCode: http.StatusBadRequest}
}

// Upload is a file as received from the client
type Upload struct {
	Filename string
	// MimeType is the client-declared content type, possibly empty
	MimeType string
	Content  io.Reader
}

// Prepare validates an upload and builds the document row for it.
// The type check passes when either the extension or the declared MIME type is
// allowed. Content is read up to one byte past the size limit.
func Prepare(upload *Upload) (*persistence.Document, error) {
	if upload == nil || upload.Content == nil {
		return nil, invalid("file is required")
	}

	filename := strings.TrimSpace(upload.Filename)
	if filename == "" {
		return nil, invalid("filename is required")
	}

	declared := normalizeMimeType(upload.MimeType)
	ext := strings.ToLower(filepath.Ext(filename))
	if !IsAllowed(ext, declared) {
		return nil, invalid("unsupported file type")
	}

	data, err := io.ReadAll(io.LimitReader(upload.Content, MaxSizeBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, invalid("file is empty")
	}
	if len(data) > MaxSizeBytes {
		return nil, invalid("file exceeds size limit")
	}

	sum := sha256.Sum256(data)

	return &persistence.Document{
		Filename:    filename,
		MimeType:    resolveMimeType(declared, data),
		SizeBytes:   int64(len(data)),
		Checksum:    hex.EncodeToString(sum[:]),
		StorageData: data,
	}, nil
}

// IsAllowed reports whether an extension (with dot) or MIME type is accepted
func IsAllowed(ext, mimeType string) bool {
	if _, ok := allowedExtensions[strings.ToLower(ext)]; ok {
		return true
	}
	_, ok := allowedMimeTypes[normalizeMimeType(mimeType)]
	return ok
}

// resolveMimeType keeps a declared type and sniffs the content otherwise
func resolveMimeType(declared string, data []byte) string {
	if declared != "" && declared != fallbackMimeType {
		return declared
	}
	if detected := normalizeMimeType(mimetype.Detect(data).String()); detected != "" {
		return detected
	}
	return fallbackMimeType
}

// normalizeMimeType lower-cases and strips parameters such as charset
func normalizeMimeType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(value); err == nil {
		return mediaType
	}
	return strings.ToLower(value)
}
