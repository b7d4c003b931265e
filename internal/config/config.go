// Package config содержит конфигурацию приложения.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/c2h5oh/datasize"
)

// ErrInvalidConfig возвращается при некорректной конфигурации.
var ErrInvalidConfig = errors.New("некорректная конфигурация")

// ManifestListing определяет, какие исходники попадают в список отчёта.
type ManifestListing string

const (
	// ListingAll - все найденные исходники, независимо от результатов задач.
	ListingAll ManifestListing = "all"
	// ListingSucceeded - только исходники, у которых все задачи успешны.
	ListingSucceeded ManifestListing = "succeeded"
)

// Имена файлов отчётов в корне проекта.
const (
	ImageManifestName = "RESPONSIVE_IMAGES.md"
	VideoManifestName = "VIDEO_OPTIMIZATION.md"
)

// Имена производных поддиректорий. Не настраиваются.
const (
	WebPDirName       = "webp"
	ResponsiveDirName = "responsive"
	OptimizedDirName  = "optimized"
)

// Config содержит все настройки запуска.
type Config struct {
	// ProjectRoot - корень проекта, куда пишутся отчёты.
	ProjectRoot string

	// ImagesDir - директория с исходными изображениями (относительно ProjectRoot, если не абсолютная).
	ImagesDir string

	// VideosDir - директория с исходными видео.
	VideosDir string

	// RunImages - запускать пайплайн изображений.
	RunImages bool

	// RunVideos - запускать пайплайн видео.
	RunVideos bool

	// Spec - каталог вариантов.
	Spec VariantSpec

	// Workers - количество параллельных воркеров для изображений.
	Workers int

	// VideoWorkers - количество параллельных воркеров для видео.
	VideoWorkers int

	// DBPath - путь к SQLite журналу запусков.
	DBPath string

	// NoJournal - не вести журнал.
	NoJournal bool

	// VipsPath, FFmpegPath, FFprobePath - явные пути к инструментам (опционально).
	VipsPath    string
	FFmpegPath  string
	FFprobePath string

	// ImageManifestPath, VideoManifestPath - пути отчётов (по умолчанию в ProjectRoot).
	ImageManifestPath string
	VideoManifestPath string

	// ManifestListing - режим списка файлов в отчёте.
	ManifestListing ManifestListing

	// ManifestOutcomes - добавлять в отчёт раздел с результатами задач.
	ManifestOutcomes bool

	// MinFreeDisk - минимум свободного места на выходной ФС (0 = не проверять).
	MinFreeDisk datasize.ByteSize

	// ImageTimeout, VideoTimeout - таймаут одного процесса.
	ImageTimeout time.Duration
	VideoTimeout time.Duration

	// DryRun - режим симуляции без запуска инструментов.
	DryRun bool

	// Verbose - подробный вывод.
	Verbose bool

	// JSONLogs - логи в JSON.
	JSONLogs bool

	// NoProgress - отключить прогресс-бар.
	NoProgress bool

	// Watch - после запуска следить за входными директориями.
	Watch bool

	// Profile - встроенный профиль вариантов (default, mobile, hq).
	Profile string
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() *Config {
	return &Config{
		ProjectRoot:     ".",
		ImagesDir:       filepath.Join("public", "images"),
		VideosDir:       filepath.Join("public", "videos"),
		RunImages:       true,
		RunVideos:       true,
		Spec:            DefaultVariantSpec(),
		Workers:         runtime.NumCPU(),
		VideoWorkers:    1,
		ManifestListing: ListingAll,
		ImageTimeout:    5 * time.Minute,
		VideoTimeout:    30 * time.Minute,
		Profile:         string(ProfileDefault),
	}
}

// Validate проверяет корректность конфигурации и заполняет производные пути.
func (c *Config) Validate() error {
	if c.ProjectRoot == "" {
		return fmt.Errorf("%w: корень проекта не указан (--root)", ErrInvalidConfig)
	}
	if !c.RunImages && !c.RunVideos {
		return fmt.Errorf("%w: выключены оба пайплайна", ErrInvalidConfig)
	}
	if c.RunImages && c.ImagesDir == "" {
		return fmt.Errorf("%w: директория изображений не указана (--images)", ErrInvalidConfig)
	}
	if c.RunVideos && c.VideosDir == "" {
		return fmt.Errorf("%w: директория видео не указана (--videos)", ErrInvalidConfig)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: количество воркеров должно быть >= 1, получено: %d", ErrInvalidConfig, c.Workers)
	}
	if c.VideoWorkers < 1 {
		return fmt.Errorf("%w: количество видео-воркеров должно быть >= 1, получено: %d", ErrInvalidConfig, c.VideoWorkers)
	}
	if c.ManifestListing != ListingAll && c.ManifestListing != ListingSucceeded {
		return fmt.Errorf("%w: неизвестный режим отчёта: %s (доступны: all, succeeded)", ErrInvalidConfig, c.ManifestListing)
	}
	if c.ImageTimeout <= 0 || c.VideoTimeout <= 0 {
		return fmt.Errorf("%w: таймауты должны быть положительными", ErrInvalidConfig)
	}
	if err := c.Spec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	// Пути по умолчанию
	if c.ImageManifestPath == "" {
		c.ImageManifestPath = filepath.Join(c.ProjectRoot, ImageManifestName)
	}
	if c.VideoManifestPath == "" {
		c.VideoManifestPath = filepath.Join(c.ProjectRoot, VideoManifestName)
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.ProjectRoot, ".mediaopt", "state.sqlite")
	}

	return nil
}

// Layout - раскладка входных и выходных директорий.
type Layout struct {
	ImagesDir     string
	WebPDir       string
	ResponsiveDir string
	VideosDir     string
	OptimizedDir  string
}

// Layout вычисляет абсолютные пути директорий.
func (c *Config) Layout() Layout {
	images := c.resolve(c.ImagesDir)
	videos := c.resolve(c.VideosDir)
	return Layout{
		ImagesDir:     images,
		WebPDir:       filepath.Join(images, WebPDirName),
		ResponsiveDir: filepath.Join(images, ResponsiveDirName),
		VideosDir:     videos,
		OptimizedDir:  filepath.Join(videos, OptimizedDirName),
	}
}

// resolve делает путь абсолютным относительно ProjectRoot.
func (c *Config) resolve(p string) string {
	if !filepath.IsAbs(p) {
		p = filepath.Join(c.ProjectRoot, p)
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// SpecParams возвращает каталог вариантов в виде JSON.
func (c *Config) SpecParams() string {
	b, _ := json.Marshal(c.Spec)
	return string(b)
}

// SpecHash возвращает sha256 хэш каталога вариантов.
func (c *Config) SpecHash() string {
	h := sha256.Sum256([]byte(c.SpecParams()))
	return hex.EncodeToString(h[:])
}

/*
Возможные расширения:
- Добавить поддержку нескольких директорий изображений
- Добавить AVIF как второй современный формат
*/
