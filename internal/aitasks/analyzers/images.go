// Package analyzers holds the AI task handlers: image OCR and damage
// assessment, satellite vegetation comparison and rule-based fraud scoring.
package analyzers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"claims_backend/internal/adapters/storage"
	"claims_backend/internal/claims/domain"
	"claims_backend/platform/logger"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/sync/errgroup"
)

// MaxImageBytes caps a single image download.
const MaxImageBytes int64 = 15 << 20

const imageFetchConcurrency = 4

// Image is a downloaded claim photo.
type Image struct {
	Path     string
	MIMEType string
	Data     []byte
}

// loadImages downloads photos concurrently. Individual failures are logged
// and skipped; an error is returned only when nothing could be read.
func loadImages(ctx context.Context, reader storage.ObjectReader, paths []string, log *logger.Logger) ([]Image, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	loaded := make([]*Image, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imageFetchConcurrency)

	for i, p := range paths {
		g.Go(func() error {
			data, err := reader.ReadObject(gctx, p, MaxImageBytes)
			if err != nil {
				log.WithContext(ctx).Warn("claim image download failed", "path", p, "error", err)
				return nil
			}
			loaded[i] = &Image{Path: p, MIMEType: mimeTypeFor(p), Data: data}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	images := make([]Image, 0, len(paths))
	for _, img := range loaded {
		if img != nil {
			images = append(images, *img)
		}
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("none of %d claim images could be read", len(paths))
	}
	return images, nil
}

func mimeTypeFor(p string) string {
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(p))); strings.HasPrefix(t, "image/") {
		return t
	}
	return "image/jpeg"
}

// ExtractImageMetadata decodes EXIF capture time, GPS position and camera.
// Images without EXIF yield HasEXIF=false.
func ExtractImageMetadata(p string, data []byte) domain.ImageMetadata {
	meta := domain.ImageMetadata{FilePath: p}

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return meta
	}
	meta.HasEXIF = true

	if captured, err := x.DateTime(); err == nil {
		meta.CapturedAt = &captured
	}
	if lat, lng, err := x.LatLong(); err == nil {
		meta.Lat = &lat
		meta.Lng = &lng
	}
	meta.CameraMake = exifString(x, exif.Make)
	meta.Model = exifString(x, exif.Model)
	return meta
}

func exifString(x *exif.Exif, field exif.FieldName) string {
	tag, err := x.Get(field)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}

func metadataFor(images []Image) []domain.ImageMetadata {
	out := make([]domain.ImageMetadata, 0, len(images))
	for _, img := range images {
		out = append(out, ExtractImageMetadata(img.Path, img.Data))
	}
	return out
}

var errNoLocation = errors.New("claim has no location")
