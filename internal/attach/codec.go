// Package attach turns local files into transportable message attachments.
package attach

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ekomarov/gemchat/internal/session"
)

// MaxFileBytes caps a single attachment payload
const MaxFileBytes = 10 * 1024 * 1024

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
)

// allowedTypes maps accepted extensions to the MIME type sent upstream
var allowedTypes = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".json": "application/json",
	".xml":  "application/xml",
	".html": "text/html",
	".rtf":  "application/rtf",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
}

// EncodeFile reads path and returns an attachment with a base64 payload.
// Files outside the allow-list or over MaxFileBytes are rejected before
// anything is read into the payload.
func EncodeFile(path string) (session.Attachment, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mimeType, ok := allowedTypes[ext]
	if !ok {
		return session.Attachment{}, fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}

	info, err := os.Stat(path)
	if err != nil {
		return session.Attachment{}, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return session.Attachment{}, fmt.Errorf("not a regular file: %s", path)
	}
	if info.Size() > MaxFileBytes {
		return session.Attachment{}, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, info.Size(), MaxFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return session.Attachment{}, fmt.Errorf("failed to read file: %w", err)
	}

	return session.Attachment{
		Name:     filepath.Base(path),
		MIMEType: mimeType,
		Size:     int64(len(data)),
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}
