// Package storage puts uploaded files somewhere addressable and reports
// where. Backends are S3, Cloudinary and the local disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"campustrack/internal/logging"
	"campustrack/internal/metrics"
)

// File is an upload as received from a client.
type File struct {
	Name string
	Data []byte
	// ContentType is sniffed from Data when empty.
	ContentType string
}

// Object is the stored file reference kept on a submission.
type Object struct {
	URL  string `json:"fileUrl,omitempty" bson:"fileUrl,omitempty"`
	Name string `json:"fileName,omitempty" bson:"fileName,omitempty"`
	Size int64  `json:"fileSize,omitempty" bson:"fileSize,omitempty"`
	Type string `json:"fileType,omitempty" bson:"fileType,omitempty"`
}

// Empty reports whether o references no file.
func (o Object) Empty() bool {
	return o.URL == ""
}

// Uploader stores a file under folder.
type Uploader interface {
	Upload(ctx context.Context, folder string, f File) (Object, error)
	Name() string
}

var ErrEmptyFile = errors.New("storage: empty file")

// DetectType sniffs the MIME type of data.
func DetectType(data []byte) string {
	return mimetype.Detect(data).String()
}

// Key builds a unique object key that keeps the original extension.
func Key(folder, name string, now time.Time) string {
	ext := strings.ToLower(path.Ext(name))
	return path.Join(folder, fmt.Sprintf("%d-%s%s", now.UnixMilli(), uuid.NewString()[:8], ext))
}

func prepare(f File) (File, error) {
	if len(f.Data) == 0 {
		return f, ErrEmptyFile
	}
	if f.ContentType == "" || f.ContentType == "application/octet-stream" {
		f.ContentType = DetectType(f.Data)
	}
	if f.Name == "" {
		f.Name = "upload" + mimetype.Detect(f.Data).Extension()
	}
	return f, nil
}

// Fallback tries Primary and stores through Secondary when it fails.
type Fallback struct {
	Primary   Uploader
	Secondary Uploader
	Log       *slog.Logger
}

func (f Fallback) Name() string {
	return f.Primary.Name() + "+" + f.Secondary.Name()
}

func (f Fallback) Upload(ctx context.Context, folder string, file File) (Object, error) {
	obj, err := f.Primary.Upload(ctx, folder, file)
	if err == nil {
		metrics.Uploads.WithLabelValues(f.Primary.Name(), "ok").Inc()
		return obj, nil
	}
	if errors.Is(err, ErrEmptyFile) {
		return Object{}, err
	}
	metrics.Uploads.WithLabelValues(f.Primary.Name(), "error").Inc()
	logging.OrDefault(f.Log).WarnContext(ctx, "primary storage failed, using fallback",
		"primary", f.Primary.Name(), "fallback", f.Secondary.Name(), "err", err)

	obj, err = f.Secondary.Upload(ctx, folder, file)
	if err != nil {
		metrics.Uploads.WithLabelValues(f.Secondary.Name(), "error").Inc()
		return Object{}, err
	}
	metrics.Uploads.WithLabelValues(f.Secondary.Name(), "ok").Inc()
	return obj, nil
}
