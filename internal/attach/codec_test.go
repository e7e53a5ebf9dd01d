package attach

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestEncodeFile(t *testing.T) {
	content := []byte("hello, world")
	path := writeTempFile(t, "notes.txt", content)

	att, err := EncodeFile(path)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if att.Name != "notes.txt" {
		t.Errorf("name = %q", att.Name)
	}
	if att.MIMEType != "text/plain" {
		t.Errorf("mime = %q", att.MIMEType)
	}
	if att.Size != int64(len(content)) {
		t.Errorf("size = %d, want %d", att.Size, len(content))
	}
	decoded, err := base64.StdEncoding.DecodeString(att.Data)
	if err != nil {
		t.Fatalf("payload is not valid base64: %v", err)
	}
	if string(decoded) != string(content) {
		t.Errorf("payload round-trip mismatch: %q", decoded)
	}
}

func TestEncodeFileExtensionCaseInsensitive(t *testing.T) {
	path := writeTempFile(t, "PHOTO.PNG", []byte{0x89, 0x50, 0x4e, 0x47})

	att, err := EncodeFile(path)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if att.MIMEType != "image/png" {
		t.Errorf("mime = %q", att.MIMEType)
	}
}

func TestEncodeFileRejectsUnknownType(t *testing.T) {
	path := writeTempFile(t, "binary.exe", []byte{0x4d, 0x5a})

	_, err := EncodeFile(path)
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestEncodeFileRejectsDirectory(t *testing.T) {
	dir := t.TempDir() + string(os.PathSeparator) + "docs.txt"
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := EncodeFile(dir); err == nil {
		t.Fatal("expected an error for a directory")
	}
}

func TestEncodeFileMissing(t *testing.T) {
	if _, err := EncodeFile(filepath.Join(t.TempDir(), "gone.txt")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
