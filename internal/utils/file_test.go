package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"missioncontrol/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateResumeRejections(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		data    []byte
		maxSize int64
		message string
	}{
		{name: "docx", file: "cv.docx", data: []byte("%PDF-1.7"), maxSize: 1024, message: "only PDF files are accepted"},
		{name: "empty", file: "cv.pdf", data: nil, maxSize: 1024, message: "resume file is empty"},
		{name: "too large", file: "cv.pdf", data: []byte(strings.Repeat("x", 2048)), maxSize: 1024, message: "file too large: 2.0 KB (max 1.0 KB)"},
		{name: "not a pdf", file: "cv.pdf", data: []byte("PK\x03\x04 zip"), maxSize: 1024, message: "file is not a PDF document"},
		{name: "corrupt pdf", file: "cv.pdf", data: []byte("%PDF-1.4\nthis is not a real document\n"), maxSize: 1024, message: "PDF could not be parsed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateResume(tt.file, tt.data, tt.maxSize)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestValidateResumeAcceptsUppercaseExtension(t *testing.T) {
	assert.True(t, IsPDFName("Resume.PDF"))
	assert.False(t, IsPDFName("resume.pdf.txt"))
}

func TestLoadResumeChecksFilesystem(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadResume(filepath.Join(dir, "missing.pdf"), 1024)
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileNotFound))

	_, err = LoadResume(dir, 1024)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidFile))

	big := filepath.Join(dir, "big.pdf")
	require.NoError(t, os.WriteFile(big, make([]byte, 4096), 0o600))
	_, err = LoadResume(big, 1024)
	assert.ErrorContains(t, err, "file too large")
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatFileSize(512))
	assert.Equal(t, "10.0 MB", FormatFileSize(10*1024*1024))
}

func TestLoadResumeAcceptsValidPDF(t *testing.T) {
	resume, err := LoadResume(filepath.Join("testdata", "resume.pdf"), 1024*1024)
	require.NoError(t, err)
	assert.Equal(t, "resume.pdf", resume.Name)
	assert.Equal(t, 1, resume.Pages)
	assert.NotEmpty(t, resume.Data)
}
