package thumbnails

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WebP format support

	"media-library/internal/filesystem"
	"media-library/internal/library"
	"media-library/internal/logging"
	"media-library/internal/mediatypes"
	"media-library/internal/metrics"
	"media-library/internal/startup"
)

const (
	// Size is the edge length of the square thumbnails.
	Size = 400

	// Quality is the JPEG quality thumbnails are encoded with.
	Quality = 85

	// MaxImageDimension is the maximum width or height decoded at full size.
	// Larger images are downscaled before cropping.
	MaxImageDimension = 4096

	// MaxImagePixels is the maximum total pixels decoded at full size.
	MaxImagePixels = 20_000_000
)

// FrameExtractor writes one still frame of a video (or an image format the
// Go decoders do not understand) to a JPEG file.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, src, dest string) error
}

// Generator writes cached thumbnails under the library's .thumbnails
// directory, sharded by content hash.
type Generator struct {
	layout library.Layout
	frames FrameExtractor
	mu     sync.Mutex
}

// NewGenerator creates a Generator for cfg's library.
func NewGenerator(cfg *startup.Config, frames FrameExtractor) *Generator {
	return &Generator{layout: cfg.Layout, frames: frames}
}

// Path returns where the thumbnail for hash is stored.
func (g *Generator) Path(hash string) string {
	return g.layout.ThumbnailPath(hash)
}

// Exists reports whether a thumbnail for hash is cached.
func (g *Generator) Exists(hash string) bool {
	info, err := os.Stat(g.Path(hash))
	return err == nil && info.Size() > 0
}

// Generate writes the thumbnail for the file at path unless one already
// exists for hash, and returns its location.
func (g *Generator) Generate(ctx context.Context, path, hash string, kind mediatypes.Kind) (string, error) {
	dest := g.Path(hash)
	if g.Exists(hash) {
		metrics.ThumbnailGenerationsTotal.WithLabelValues(string(kind), "skipped").Inc()
		return dest, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Exists(hash) {
		return dest, nil
	}

	start := time.Now()
	logging.Debug("Thumbnail generating: %s (type: %s)", path, kind)

	var img image.Image
	var err error
	switch kind {
	case mediatypes.KindPhoto:
		img, err = g.loadImage(ctx, path, hash)
	case mediatypes.KindVideo:
		img, err = g.loadFrame(ctx, path, hash)
	default:
		err = fmt.Errorf("unsupported media kind %q", kind)
	}
	if err == nil {
		err = g.write(dest, imaging.Fill(img, Size, Size, imaging.Center, imaging.Lanczos))
	}

	metrics.ThumbnailGenerationDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ThumbnailGenerationsTotal.WithLabelValues(string(kind), "error").Inc()
		return "", fmt.Errorf("thumbnail for %s: %w", path, err)
	}

	metrics.ThumbnailGenerationsTotal.WithLabelValues(string(kind), "success").Inc()
	logging.Debug("Thumbnail cached: %s", dest)
	return dest, nil
}

// Remove deletes the thumbnail for hash, if any.
func (g *Generator) Remove(hash string) error {
	return Remove(g.layout, hash)
}

// Remove deletes the cached thumbnail for hash and any shard directories
// left empty. A missing thumbnail is not an error.
func Remove(layout library.Layout, hash string) error {
	path := layout.ThumbnailPath(hash)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	filesystem.RemoveEmptyParents(filepath.Dir(path), layout.ThumbnailDir())
	logging.Debug("Removed thumbnail %s", path)
	return nil
}

func (g *Generator) loadImage(ctx context.Context, path, hash string) (image.Image, error) {
	img, err := loadImageConstrained(path, MaxImageDimension, MaxImagePixels)
	if err == nil {
		return img, nil
	}

	logging.Debug("imaging.Open failed for %s: %v, trying ffmpeg fallback", path, err)

	img, ffErr := g.loadFrame(ctx, path, hash)
	if ffErr != nil {
		return nil, fmt.Errorf("all image decode methods failed: %w", err)
	}
	return img, nil
}

// loadFrame has the frame extractor render path into the import staging
// directory and decodes the result.
func (g *Generator) loadFrame(ctx context.Context, path, hash string) (image.Image, error) {
	if g.frames == nil {
		return nil, fmt.Errorf("no frame extractor configured")
	}

	frame := filepath.Join(g.layout.ImportTempDir(), "frame_"+hash+".jpg")
	defer func() {
		if err := os.Remove(frame); err != nil && !os.IsNotExist(err) {
			logging.Warn("Failed to remove frame %s: %v", frame, err)
		}
	}()

	if err := g.frames.ExtractFrame(ctx, path, frame); err != nil {
		return nil, err
	}
	return imaging.Open(frame)
}

// write encodes img next to dest and renames it into place so readers
// never see a partial file.
func (g *Generator) write(dest string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := imaging.Encode(f, img, imaging.JPEG, imaging.JPEGQuality(Quality)); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

// loadImageConstrained opens path with EXIF auto-orientation, downscaling
// images that exceed maxDimension on either axis or maxPixels in total.
func loadImageConstrained(path string, maxDimension, maxPixels int) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width <= maxDimension && height <= maxDimension && width*height <= maxPixels {
		return img, nil
	}

	targetWidth, targetHeight := width, height
	if width > maxDimension || height > maxDimension {
		if width > height {
			targetWidth = maxDimension
			targetHeight = height * maxDimension / width
		} else {
			targetHeight = maxDimension
			targetWidth = width * maxDimension / height
		}
	}
	if pixels := targetWidth * targetHeight; pixels > maxPixels {
		scale := float64(maxPixels) / float64(pixels)
		targetWidth = int(float64(targetWidth) * scale)
		targetHeight = int(float64(targetHeight) * scale)
	}

	logging.Info("Constraining large image %s from %dx%d to %dx%d", path, width, height, targetWidth, targetHeight)
	return imaging.Resize(img, targetWidth, targetHeight, imaging.Lanczos), nil
}
