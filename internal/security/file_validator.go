package security

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Errors returned by Validate
var (
	ErrBinaryContent = errors.New("file appears to be binary")
	ErrDisguisedFile = errors.New("file signature does not match a template")
	ErrNotPHP        = errors.New("no PHP patterns found")
)

// FileValidator screens file content before it is handed to extraction.
// Only the header is inspected so large files stay cheap to reject.
type FileValidator struct {
	ValidationThreshold int64 // content larger than this also gets the PHP pattern check
	HeaderSize          int   // bytes of header inspected
}

func NewFileValidator(thresholdKB int64) *FileValidator {
	return &FileValidator{
		ValidationThreshold: thresholdKB * 1024,
		HeaderSize:          64 * 1024,
	}
}

// Validate checks content read from path. Binary data and foreign file
// signatures are rejected for every file. Plain PHP files over the
// threshold must also look like PHP; Blade templates may be pure HTML.
func (fv *FileValidator) Validate(path string, content []byte) error {
	header := content
	if fv.HeaderSize > 0 && len(header) > fv.HeaderSize {
		header = header[:fv.HeaderSize]
	}

	if sig := matchSignature(header); sig != "" {
		return fmt.Errorf("%w: %s data in %s", ErrDisguisedFile, sig, filepath.Base(path))
	}

	if isBinaryData(header) {
		return fmt.Errorf("%w: %s", ErrBinaryContent, filepath.Base(path))
	}

	if int64(len(content)) > fv.ValidationThreshold && isPlainPHP(path) && !looksLikePHP(header) {
		return fmt.Errorf("%w: %s", ErrNotPHP, filepath.Base(path))
	}

	return nil
}

var signatures = []struct {
	name  string
	magic []byte
}{
	{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	{"jpeg", []byte{0xFF, 0xD8, 0xFF}},
	{"gif", []byte("GIF8")},
	{"pdf", []byte("%PDF-")},
	{"zip", []byte{0x50, 0x4B, 0x03, 0x04}},
	{"gzip", []byte{0x1F, 0x8B}},
	{"elf", []byte{0x7F, 'E', 'L', 'F'}},
	{"pe", []byte{0x4D, 0x5A, 0x90, 0x00}},
}

func matchSignature(header []byte) string {
	for _, s := range signatures {
		if bytes.HasPrefix(header, s.magic) {
			return s.name
		}
	}
	return ""
}

// isBinaryData reports more than 30% control characters other than
// tab, LF and CR.
func isBinaryData(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	nonPrintable := 0
	for _, b := range data {
		if b < 9 || (b > 13 && b < 32) || b == 127 {
			nonPrintable++
		}
	}

	return float64(nonPrintable)/float64(len(data)) > 0.3
}

func isPlainPHP(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	return strings.HasSuffix(name, ".php") && !strings.HasSuffix(name, ".blade.php")
}

var phpPatterns = [][]byte{
	[]byte("<?php"),
	[]byte("<?="),
	[]byte("$"),
	[]byte("function "),
	[]byte("class "),
	[]byte("echo "),
	[]byte("return "),
}

func looksLikePHP(header []byte) bool {
	for _, pattern := range phpPatterns {
		if bytes.Contains(header, pattern) {
			return true
		}
	}
	return false
}
