// Package validator checks uploaded scans before they become intakes.
package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/cieplik206/dokumenty/config"
	"github.com/cieplik206/dokumenty/internal/apperr"
	"github.com/cieplik206/dokumenty/pkg/logger"
)

const uploadField = "scans"

// allowedTypes maps an accepted extension to the content types it may carry.
var allowedTypes = map[string][]string{
	".pdf":  {"application/pdf"},
	".jpg":  {"image/jpeg"},
	".jpeg": {"image/jpeg"},
	".png":  {"image/png"},
	".webp": {"image/webp"},
	".gif":  {"image/gif"},
}

// FileInfo describes an accepted upload.
type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Hash      string `json:"hash"`
}

type UploadValidator struct {
	maxBytes   int64
	extensions map[string]bool
	logger     logger.Logger
}

func NewUploadValidator(cfg config.UploadConfig, log logger.Logger) *UploadValidator {
	exts := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = true
	}
	return &UploadValidator{
		maxBytes:   cfg.MaxBytes,
		extensions: exts,
		logger:     log.Named("validator"),
	}
}

// ValidateFiles checks every file and stops at the first rejection.
func (v *UploadValidator) ValidateFiles(files []*multipart.FileHeader) ([]FileInfo, error) {
	if len(files) == 0 {
		return nil, apperr.Invalid(uploadField, "At least one scan is required.")
	}
	out := make([]FileInfo, 0, len(files))
	for _, f := range files {
		info, err := v.ValidateFile(f)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// ValidateFile checks size, extension and sniffed content type of one file.
func (v *UploadValidator) ValidateFile(file *multipart.FileHeader) (FileInfo, error) {
	info := FileInfo{
		Filename:  file.Filename,
		Size:      file.Size,
		Extension: strings.ToLower(filepath.Ext(file.Filename)),
	}

	if v.maxBytes > 0 && info.Size > v.maxBytes {
		return info, apperr.Invalid(uploadField, "The file %s is larger than %d KB.", info.Filename, v.maxBytes/1024)
	}
	if !v.extensions[info.Extension] {
		return info, apperr.Invalid(uploadField, "The file %s must be a PDF or an image.", info.Filename)
	}

	f, err := file.Open()
	if err != nil {
		return info, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return info, fmt.Errorf("failed to detect mime type: %w", err)
	}
	info.MimeType = mtype.String()
	if !matchesExtension(mtype, info.Extension) {
		v.logger.Warn("Upload content does not match extension",
			logger.String("file", info.Filename),
			logger.String("mimeType", info.MimeType),
		)
		return info, apperr.Invalid(uploadField, "The file %s is not a valid %s file.", info.Filename, strings.TrimPrefix(info.Extension, "."))
	}
	info.MimeType = baseType(mtype)

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return info, fmt.Errorf("failed to reset file pointer: %w", err)
	}
	hash, err := calculateHash(f)
	if err != nil {
		return info, err
	}
	info.Hash = hash
	return info, nil
}

func matchesExtension(mtype *mimetype.MIME, ext string) bool {
	want, ok := allowedTypes[ext]
	if !ok {
		return false
	}
	for _, t := range want {
		if mtype.Is(t) {
			return true
		}
	}
	return false
}

func baseType(mtype *mimetype.MIME) string {
	s := mtype.String()
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	return s
}

func calculateHash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to calculate hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
