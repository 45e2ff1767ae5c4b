package app

// Config описывает настройки запуска сервиса каталога.
type Config struct {
	// HTTPAddr — адрес REST API.
	HTTPAddr string
	// MetricsAddr — адрес служебного сервера (/metrics, /healthz, /livez).
	MetricsAddr string
	// PostgresDSN — DSN PostgreSQL; пустая строка включает in-memory хранилище.
	PostgresDSN string
	// KafkaBrokers — список брокеров через запятую; пустая строка отключает
	// публикацию событий.
	KafkaBrokers string
	// UploadDir — корень каталога артефактов изображений.
	UploadDir string
}

// DefaultConfig возвращает базовые настройки.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",
		UploadDir:   "uploads",
	}
}
