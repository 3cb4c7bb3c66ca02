package utils

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"missioncontrol/internal/errors"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pdfMagic opens every PDF document
var pdfMagic = []byte("%PDF-")

// ResumeFile is a resume read into memory, ready for upload
type ResumeFile struct {
	Name  string
	Data  []byte
	Pages int
}

// ValidateInputFile checks if a file exists and is readable
func ValidateInputFile(filename string) error {
	if filename == "" {
		return errors.NewValidationError(errors.ErrCodeInvalidFile, "filename cannot be empty", nil)
	}

	info, err := os.Stat(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewIOError(errors.ErrCodeFileNotFound, fmt.Sprintf("file does not exist: %s", filename), err)
		}
		return errors.NewIOError(errors.ErrCodeFileNotReadable, fmt.Sprintf("cannot access file %s", filename), err)
	}

	if info.IsDir() {
		return errors.NewValidationError(errors.ErrCodeInvalidFile, fmt.Sprintf("path is a directory, not a file: %s", filename), nil)
	}

	return nil
}

// ValidateOutputFile checks if the output file path is valid
func ValidateOutputFile(filename string) error {
	if filename == "" {
		return nil // stdout is valid
	}

	dir := filepath.Dir(filename)
	if dir != "." {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("cannot create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}

// GetFileExtension returns the file extension in lowercase
func GetFileExtension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// IsPDFName checks the extension the backend insists on
func IsPDFName(filename string) bool {
	return GetFileExtension(filename) == ".pdf"
}

// LoadResume reads and validates a resume from disk
func LoadResume(path string, maxSize int64) (*ResumeFile, error) {
	if err := ValidateInputFile(path); err != nil {
		return nil, err
	}
	if !IsPDFName(path) {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidFile, "only PDF files are accepted", nil).
			WithContext("file", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotReadable, "cannot stat resume", err)
	}
	if info.Size() > maxSize {
		return nil, tooLarge(info.Size(), maxSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotReadable, fmt.Sprintf("cannot read file %s", path), err)
	}

	return ValidateResume(filepath.Base(path), data, maxSize)
}

// ValidateResume checks name, size and PDF structure of an in-memory upload
func ValidateResume(name string, data []byte, maxSize int64) (*ResumeFile, error) {
	if !IsPDFName(name) {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidFile, "only PDF files are accepted", nil).
			WithContext("file", name)
	}
	if len(data) == 0 {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidFile, "resume file is empty", nil)
	}
	if int64(len(data)) > maxSize {
		return nil, tooLarge(int64(len(data)), maxSize)
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidFile, "file is not a PDF document", nil).
			WithContext("file", name)
	}

	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidFile, "PDF could not be parsed", err).
			WithContext("file", name)
	}

	return &ResumeFile{Name: name, Data: data, Pages: pdfCtx.PageCount}, nil
}

func tooLarge(size, maxSize int64) error {
	return errors.NewValidationError(errors.ErrCodeInvalidFile,
		fmt.Sprintf("file too large: %s (max %s)", FormatFileSize(size), FormatFileSize(maxSize)), nil)
}

// FormatFileSize returns a human-readable file size
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
