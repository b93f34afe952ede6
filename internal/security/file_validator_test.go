package security

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileValidator(t *testing.T) {
	validator := NewFileValidator(1)

	t.Run("BladeTemplate", func(t *testing.T) {
		content := []byte("<div>\n@if($user)\n  {{ $user->name }}\n@endif\n</div>\n")
		assert.NoError(t, validator.Validate("home.blade.php", content))
	})

	t.Run("PureHTMLBladeOverThreshold", func(t *testing.T) {
		content := bytes.Repeat([]byte("<p>static</p>\n"), 200)
		assert.NoError(t, validator.Validate("static.blade.php", content))
	})

	t.Run("PHPOverThreshold", func(t *testing.T) {
		content := append([]byte("<?php\n"), bytes.Repeat([]byte("// comment\n"), 200)...)
		assert.NoError(t, validator.Validate("app.php", content))
	})

	t.Run("TextDisguisedAsPHP", func(t *testing.T) {
		content := bytes.Repeat([]byte("lorem ipsum dolor\n"), 200)
		assert.ErrorIs(t, validator.Validate("notes.php", content), ErrNotPHP)
	})

	t.Run("SmallTextPHPBelowThreshold", func(t *testing.T) {
		assert.NoError(t, validator.Validate("tiny.php", []byte("lorem")))
	})

	t.Run("PNGDisguisedAsTemplate", func(t *testing.T) {
		content := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, []byte("IHDR")...)
		assert.ErrorIs(t, validator.Validate("logo.blade.php", content), ErrDisguisedFile)
	})

	t.Run("BinaryData", func(t *testing.T) {
		content := bytes.Repeat([]byte{0x01, 0x02, 0x03, 'a'}, 100)
		assert.ErrorIs(t, validator.Validate("blob.php", content), ErrBinaryContent)
	})

	t.Run("Empty", func(t *testing.T) {
		assert.NoError(t, validator.Validate("empty.blade.php", nil))
	})
}

func TestIsBinaryData(t *testing.T) {
	assert.False(t, isBinaryData([]byte("line one\n\tline two\r\n")))
	assert.True(t, isBinaryData([]byte{0, 0, 0, 'a'}))
	assert.False(t, isBinaryData(nil))
}

func TestHeaderLimit(t *testing.T) {
	v := &FileValidator{ValidationThreshold: 1 << 20, HeaderSize: 8}
	content := append([]byte("<p>ok</p>"), bytes.Repeat([]byte{0}, 100)...)
	assert.NoError(t, v.Validate("a.blade.php", content), "bytes past the header are not inspected")
}
