package images

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p := NewPipeline(t.TempDir(), NewTransformer(), nil)
	if err := p.EnsureDirs(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	return p
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestPipelineProcessProducesArtifacts(t *testing.T) {
	p := newTestPipeline(t)

	artifacts, err := p.Process(7, encodePNG(t, 200, 100), "image/png")
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if artifacts.ImagePath != "/uploads/original/7_original.png" {
		t.Fatalf("unexpected image path: %s", artifacts.ImagePath)
	}
	if artifacts.ThumbPath != "/uploads/thumb/7_thumb.jpg" {
		t.Fatalf("unexpected thumb path: %s", artifacts.ThumbPath)
	}

	if _, err := os.Stat(filepath.Join(p.OriginalDir(), "7_original.png")); err != nil {
		t.Fatalf("original not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(p.ThumbDir(), "7_thumb.jpg")); err != nil {
		t.Fatalf("thumbnail not written: %v", err)
	}
}

func TestPipelineThumbnailIsSquareJPEG(t *testing.T) {
	p := newTestPipeline(t)

	if _, err := p.Process(3, encodeJPEG(t, 800, 300), "image/jpeg"); err != nil {
		t.Fatalf("process: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(p.ThumbDir(), "3_thumb.jpg"))
	if err != nil {
		t.Fatalf("read thumbnail: %v", err)
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if format != "jpeg" {
		t.Fatalf("thumbnail format = %s, want jpeg", format)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 360 || bounds.Dy() != 360 {
		t.Fatalf("thumbnail size = %dx%d, want 360x360", bounds.Dx(), bounds.Dy())
	}
}

func TestPipelineOriginalNotEnlarged(t *testing.T) {
	p := newTestPipeline(t)

	if _, err := p.Process(4, encodePNG(t, 200, 100), "image/png"); err != nil {
		t.Fatalf("process: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(p.OriginalDir(), "4_original.png"))
	if err != nil {
		t.Fatalf("read original: %v", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode original: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 200 || bounds.Dy() != 100 {
		t.Fatalf("original size = %dx%d, want 200x100", bounds.Dx(), bounds.Dy())
	}
}

func TestPipelineReplaceClearsOldArtifacts(t *testing.T) {
	p := newTestPipeline(t)

	if _, err := p.Process(9, encodePNG(t, 100, 100), "image/png"); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	if _, err := p.Process(9, encodeJPEG(t, 100, 100), "image/jpeg"); err != nil {
		t.Fatalf("second upload: %v", err)
	}

	originals := listDir(t, p.OriginalDir())
	if len(originals) != 1 || originals[0] != "9_original.jpg" {
		t.Fatalf("unexpected originals after replace: %v", originals)
	}
	thumbs := listDir(t, p.ThumbDir())
	if len(thumbs) != 1 || thumbs[0] != "9_thumb.jpg" {
		t.Fatalf("unexpected thumbnails after replace: %v", thumbs)
	}
}

func TestPipelineReplaceKeepsOtherProducts(t *testing.T) {
	p := newTestPipeline(t)

	if _, err := p.Process(1, encodePNG(t, 100, 100), "image/png"); err != nil {
		t.Fatalf("upload product 1: %v", err)
	}
	if _, err := p.Process(11, encodePNG(t, 100, 100), "image/png"); err != nil {
		t.Fatalf("upload product 11: %v", err)
	}
	if _, err := p.Process(1, encodeJPEG(t, 100, 100), "image/jpeg"); err != nil {
		t.Fatalf("replace product 1: %v", err)
	}

	if _, err := os.Stat(filepath.Join(p.OriginalDir(), "11_original.png")); err != nil {
		t.Fatalf("product 11 original lost: %v", err)
	}
}

func TestPipelineConcurrentUploadsLeaveOnePair(t *testing.T) {
	p := newTestPipeline(t)

	pngData := encodePNG(t, 120, 80)
	jpegData := encodeJPEG(t, 80, 120)

	// чередуем форматы: уцелевший артефакт проигравшей загрузки
	// отличался бы расширением
	const uploads = 12
	var wg sync.WaitGroup
	for i := 0; i < uploads; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, mime := pngData, "image/png"
			if i%2 == 1 {
				data, mime = jpegData, "image/jpeg"
			}
			if _, err := p.Process(21, data, mime); err != nil {
				t.Errorf("concurrent upload %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	originals := listDir(t, p.OriginalDir())
	if len(originals) != 1 {
		t.Fatalf("originals after concurrent uploads = %v, want exactly one", originals)
	}
	thumbs := listDir(t, p.ThumbDir())
	if len(thumbs) != 1 || thumbs[0] != "21_thumb.jpg" {
		t.Fatalf("thumbnails after concurrent uploads = %v, want [21_thumb.jpg]", thumbs)
	}
	if originals[0] != "21_original.png" && originals[0] != "21_original.jpg" {
		t.Fatalf("unexpected original name: %s", originals[0])
	}
}

func TestPipelineRejectsBeforeWriting(t *testing.T) {
	p := newTestPipeline(t)

	if _, err := p.Process(2, []byte("GIF89a"), "image/gif"); !errors.Is(err, domain.ErrUnsupportedImageType) {
		t.Fatalf("unsupported type error = %v", err)
	}

	big := make([]byte, MaxUploadBytes+1)
	if _, err := p.Process(2, big, "image/png"); !errors.Is(err, domain.ErrImageTooLarge) {
		t.Fatalf("oversized error = %v", err)
	}

	if _, err := p.Process(0, encodePNG(t, 10, 10), "image/png"); !errors.Is(err, domain.ErrProductIDInvalid) {
		t.Fatalf("invalid id error = %v", err)
	}

	if names := listDir(t, p.OriginalDir()); len(names) != 0 {
		t.Fatalf("rejected upload wrote originals: %v", names)
	}
	if names := listDir(t, p.ThumbDir()); len(names) != 0 {
		t.Fatalf("rejected upload wrote thumbnails: %v", names)
	}
}

func TestPipelineRemove(t *testing.T) {
	p := newTestPipeline(t)

	if _, err := p.Process(6, encodePNG(t, 50, 50), "image/png"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Remove(6); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if names := listDir(t, p.OriginalDir()); len(names) != 0 {
		t.Fatalf("originals left after remove: %v", names)
	}

	// повторное удаление — no-op
	if err := p.Remove(6); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}
