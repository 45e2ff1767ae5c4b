package images

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

const (
	// MaxUploadBytes ограничивает размер загружаемого изображения.
	MaxUploadBytes = 10 << 20

	originalMaxSide = 1400
	thumbSide       = 360
	originalQuality = 86
	thumbQuality    = 82

	// PublicOriginalPrefix и PublicThumbPrefix — публичные URL-префиксы артефактов.
	PublicOriginalPrefix = "/uploads/original"
	PublicThumbPrefix    = "/uploads/thumb"
)

// mimeToExt отображает допустимые MIME-типы на расширение артефакта.
var mimeToExt = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

var extToFormat = map[string]Format{
	"jpg":  FormatJPEG,
	"png":  FormatPNG,
	"webp": FormatWebP,
}

// Artifacts — публичные пути артефактов, сохраняемые вызывающим
// в записи товара. Сам конвейер запись товара не трогает.
type Artifacts struct {
	ImagePath string
	ThumbPath string
}

// Pipeline принимает буфер загруженного изображения, валидирует его и
// производит два артефакта на товар: нормализованный оригинал и квадратный
// thumbnail. Для одного товара существует не более одной пары артефактов:
// перед записью удаляются все файлы с префиксом `{id}_`.
type Pipeline struct {
	originalDir string
	thumbDir    string
	transformer Transformer
	logger      *log.Entry
	metrics     *metrics.PipelineMetrics

	// locks сериализует загрузки одного товара: clear и write не интерливятся.
	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex
}

// NewPipeline создаёт конвейер, пишущий в uploadDir/original и uploadDir/thumb.
func NewPipeline(uploadDir string, transformer Transformer, logger *log.Entry) *Pipeline {
	if logger == nil {
		logger = log.WithField("component", "image-pipeline")
	}
	return &Pipeline{
		originalDir: filepath.Join(uploadDir, "original"),
		thumbDir:    filepath.Join(uploadDir, "thumb"),
		transformer: transformer,
		logger:      logger,
		metrics:     metrics.NewPipelineMetrics(),
		locks:       make(map[int64]*sync.Mutex),
	}
}

// EnsureDirs создаёт каталоги артефактов. Ошибка здесь фатальна для запуска.
func (p *Pipeline) EnsureDirs() error {
	for _, dir := range []string{p.originalDir, p.thumbDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create upload dir %s: %w", dir, err)
		}
	}
	return nil
}

// OriginalDir возвращает каталог оригиналов (для статики и тестов).
func (p *Pipeline) OriginalDir() string { return p.originalDir }

// ThumbDir возвращает каталог thumbnail-ов (для статики и тестов).
func (p *Pipeline) ThumbDir() string { return p.thumbDir }

// Validate проверяет заявленный MIME-тип и размер до любых изменений на диске.
func (p *Pipeline) Validate(data []byte, mimeType string) (string, error) {
	ext, ok := mimeToExt[mimeType]
	if !ok {
		return "", domain.ErrUnsupportedImageType
	}
	if len(data) > MaxUploadBytes {
		return "", domain.ErrImageTooLarge
	}
	return ext, nil
}

// Process прогоняет загрузку через конвейер:
// валидация -> очистка старых артефактов -> оригинал -> thumbnail.
// Любая ошибка валидации отклоняет запрос до первой записи на диск.
func (p *Pipeline) Process(productID int64, data []byte, mimeType string) (Artifacts, error) {
	if productID <= 0 {
		return Artifacts{}, domain.ErrProductIDInvalid
	}

	ext, err := p.Validate(data, mimeType)
	if err != nil {
		p.metrics.RecordRejected()
		return Artifacts{}, err
	}

	unlock := p.lock(productID)
	defer unlock()

	started := time.Now()

	if err := p.removeLocked(productID); err != nil {
		return Artifacts{}, err
	}

	originalName := fmt.Sprintf("%d_original.%s", productID, ext)
	thumbName := fmt.Sprintf("%d_thumb.jpg", productID)

	original, err := p.transformer.Transform(data, Spec{
		Width:   originalMaxSide,
		Height:  originalMaxSide,
		Mode:    ModeFit,
		Format:  extToFormat[ext],
		Quality: originalQuality,
	})
	if err != nil {
		return Artifacts{}, fmt.Errorf("transform original: %w", err)
	}
	if err := os.WriteFile(filepath.Join(p.originalDir, originalName), original, 0o644); err != nil {
		return Artifacts{}, fmt.Errorf("write original: %w", err)
	}

	thumb, err := p.transformer.Transform(data, Spec{
		Width:   thumbSide,
		Height:  thumbSide,
		Mode:    ModeCover,
		Format:  FormatJPEG,
		Quality: thumbQuality,
	})
	if err != nil {
		return Artifacts{}, fmt.Errorf("transform thumbnail: %w", err)
	}
	if err := os.WriteFile(filepath.Join(p.thumbDir, thumbName), thumb, 0o644); err != nil {
		return Artifacts{}, fmt.Errorf("write thumbnail: %w", err)
	}

	p.metrics.RecordProcessed(time.Since(started))
	p.logger.WithFields(log.Fields{
		"product_id": productID,
		"format":     ext,
	}).Info("image artifacts replaced")

	return Artifacts{
		ImagePath: PublicOriginalPrefix + "/" + originalName,
		ThumbPath: PublicThumbPrefix + "/" + thumbName,
	}, nil
}

// Remove удаляет все артефакты товара. Отсутствие каталога или файлов
// не считается ошибкой.
func (p *Pipeline) Remove(productID int64) error {
	if productID <= 0 {
		return domain.ErrProductIDInvalid
	}

	unlock := p.lock(productID)
	defer unlock()

	return p.removeLocked(productID)
}

func (p *Pipeline) removeLocked(productID int64) error {
	prefix := strconv.FormatInt(productID, 10) + "_"

	for _, dir := range []string{p.originalDir, p.thumbDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("read upload dir %s: %w", dir, err)
		}

		for _, entry := range entries {
			if !strings.HasPrefix(entry.Name(), prefix) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove artifact %s: %w", entry.Name(), err)
			}
		}
	}

	return nil
}

// lock выдаёт mutex конкретного товара, создавая его при первом обращении.
func (p *Pipeline) lock(productID int64) func() {
	p.locksMu.Lock()
	mu, ok := p.locks[productID]
	if !ok {
		mu = &sync.Mutex{}
		p.locks[productID] = mu
	}
	p.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}
