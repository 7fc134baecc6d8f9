package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Local writes files below Dir and serves them under BaseURL.
type Local struct {
	Dir     string
	BaseURL string
}

func NewLocal(dir, baseURL string) *Local {
	if dir == "" {
		dir = "uploads"
	}
	if baseURL == "" {
		baseURL = "/uploads"
	}
	return &Local{Dir: dir, BaseURL: baseURL}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Upload(ctx context.Context, folder string, f File) (Object, error) {
	f, err := prepare(f)
	if err != nil {
		return Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	key := Key(folder, f.Name, time.Now())
	dst := filepath.Join(l.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Object{}, fmt.Errorf("local storage: %w", err)
	}
	if err := os.WriteFile(dst, f.Data, 0o644); err != nil {
		return Object{}, fmt.Errorf("local storage: %w", err)
	}
	return Object{
		URL:  l.BaseURL + "/" + key,
		Name: f.Name,
		Size: int64(len(f.Data)),
		Type: f.ContentType,
	}, nil
}
