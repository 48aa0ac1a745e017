package ioutils

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	_ "image/png" // PNG decoder registration

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decoder registration, common for video thumbnails
)

// DefaultCoverSize is the bounding box for embedded cover art.
const DefaultCoverSize = 500

// ImageService prepares video thumbnails for use as cover art.
//
// Thumbnails arrive as JPEG, PNG or WebP in arbitrary sizes; cover art
// embedded in an MP3 should be a modest JPEG.
//
// Example usage:
//
//	svc := NewImageService()
//	thumb, _ := client.DownloadBytes(ctx, thumbnailURL)
//	cover, err := svc.CoverArt(ctx, thumb, DefaultCoverSize)
type ImageService struct{}

// NewImageService creates a new ImageService.
func NewImageService() *ImageService {
	return &ImageService{}
}

// CoverArt decodes a thumbnail and returns it as a JPEG fitting within a
// maxSize square. Smaller images are re-encoded without scaling.
func (s *ImageService) CoverArt(ctx context.Context, data []byte, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultCoverSize
	}
	return s.ResizeImage(ctx, data, maxSize, maxSize)
}

// ResizeImage resizes an image to fit within the specified maximum dimensions.
//
// The aspect ratio is preserved and images that already fit are not
// scaled. The result is always JPEG-encoded. The Catmull-Rom algorithm is
// used for scaling.
//
// Example:
//
//	// A 1280x720 thumbnail becomes 500x281
//	resized, err := svc.ResizeImage(ctx, thumb, 500, 500)
func (s *ImageService) ResizeImage(ctx context.Context, data []byte, maxWidth, maxHeight int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width, height := fitWithin(bounds.Dx(), bounds.Dy(), maxWidth, maxHeight)
	if width == bounds.Dx() && height == bounds.Dy() {
		return encodeJPEG(img)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return encodeJPEG(dst)
}

func fitWithin(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= maxWidth && height <= maxHeight {
		return width, height
	}
	ratio := float64(width) / float64(height)
	if float64(maxWidth)/float64(maxHeight) > ratio {
		// Height is the limiting factor
		return int(float64(maxHeight) * ratio), maxHeight
	}
	return maxWidth, int(float64(maxWidth) / ratio)
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
