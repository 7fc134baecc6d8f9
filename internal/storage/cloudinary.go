package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	cld "github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Cloudinary uploads files through the Cloudinary SDK.
type Cloudinary struct {
	cld *cld.Cloudinary
}

// NewCloudinary builds an uploader from a cloudinary:// URL.
func NewCloudinary(url string) (*Cloudinary, error) {
	c, err := cld.NewFromURL(url)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	return &Cloudinary{cld: c}, nil
}

func (c *Cloudinary) Name() string { return "cloudinary" }

func (c *Cloudinary) Upload(ctx context.Context, folder string, f File) (Object, error) {
	f, err := prepare(f)
	if err != nil {
		return Object{}, err
	}
	publicID := strings.TrimSuffix(path.Base(Key("", f.Name, time.Now())), path.Ext(f.Name))
	res, err := c.cld.Upload.Upload(ctx, bytes.NewReader(f.Data), uploader.UploadParams{
		Folder:       folder,
		PublicID:     publicID,
		ResourceType: "auto",
	})
	if err != nil {
		return Object{}, fmt.Errorf("cloudinary upload: %w", err)
	}
	if res == nil || res.SecureURL == "" {
		return Object{}, fmt.Errorf("cloudinary upload: no url returned")
	}
	return Object{
		URL:  res.SecureURL,
		Name: f.Name,
		Size: int64(len(f.Data)),
		Type: f.ContentType,
	}, nil
}
