package images

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	// Регистрирует webp-декодер в image.Decode.
	_ "golang.org/x/image/webp"
)

// Format — семейство кодека выходного изображения.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// Mode задаёт стратегию изменения размера.
type Mode int

const (
	// ModeFit вписывает изображение в рамку, сохраняя пропорции
	// и никогда не увеличивая исходник.
	ModeFit Mode = iota
	// ModeCover приводит изображение ровно к заданному размеру,
	// обрезая выступающее (без полей).
	ModeCover
)

// Spec описывает одно преобразование: размер, стратегию, кодек и качество.
type Spec struct {
	Width   int
	Height  int
	Mode    Mode
	Format  Format
	Quality int
}

// Transformer выполняет преобразование изображения буфер-в-буфер.
// Узкий интерфейс позволяет тестировать конвейер без реальных кодеков.
type Transformer interface {
	Transform(src []byte, spec Spec) ([]byte, error)
}

// imagingTransformer — реализация поверх disintegration/imaging.
type imagingTransformer struct{}

// NewTransformer возвращает Transformer на реальных кодеках.
func NewTransformer() Transformer {
	return imagingTransformer{}
}

// Transform декодирует src с учётом EXIF-ориентации, меняет размер по spec
// и кодирует результат в заданный формат.
func (imagingTransformer) Transform(src []byte, spec Spec) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	switch spec.Mode {
	case ModeFit:
		img = imaging.Fit(img, spec.Width, spec.Height, imaging.Lanczos)
	case ModeCover:
		img = imaging.Fill(img, spec.Width, spec.Height, imaging.Center, imaging.Lanczos)
	default:
		return nil, fmt.Errorf("unsupported resize mode: %d", spec.Mode)
	}

	var buf bytes.Buffer
	switch spec.Format {
	case FormatJPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(spec.Quality))
	case FormatPNG:
		// PNG остаётся без потерь; качество здесь — степень сжатия.
		err = imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	case FormatWebP:
		err = webp.Encode(&buf, img, &webp.Options{Quality: float32(spec.Quality)})
	default:
		err = fmt.Errorf("unsupported output format: %s", spec.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	return buf.Bytes(), nil
}
