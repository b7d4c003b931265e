package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"
)

// FileConfig представляет структуру конфигурационного файла YAML.
// Все поля опциональны - если не указаны, используются значения по умолчанию.
type FileConfig struct {
	// Paths - настройки путей.
	Paths *PathsConfig `yaml:"paths,omitempty"`

	// Images - варианты изображений.
	Images *ImagesConfig `yaml:"images,omitempty"`

	// Video - варианты видео.
	Video *VideoConfig `yaml:"video,omitempty"`

	// Processing - настройки обработки.
	Processing *ProcessingConfig `yaml:"processing,omitempty"`

	// Manifest - настройки отчётов.
	Manifest *ManifestConfig `yaml:"manifest,omitempty"`
}

// PathsConfig содержит настройки путей.
type PathsConfig struct {
	Root          string `yaml:"root,omitempty"`
	Images        string `yaml:"images,omitempty"`
	Videos        string `yaml:"videos,omitempty"`
	DB            string `yaml:"db,omitempty"`
	Vips          string `yaml:"vips,omitempty"`
	FFmpeg        string `yaml:"ffmpeg,omitempty"`
	FFprobe       string `yaml:"ffprobe,omitempty"`
	ImageManifest string `yaml:"image_manifest,omitempty"`
	VideoManifest string `yaml:"video_manifest,omitempty"`
}

// ImagesConfig содержит варианты изображений.
type ImagesConfig struct {
	Enabled          *bool    `yaml:"enabled,omitempty"`
	Extensions       []string `yaml:"extensions,omitempty"`
	ExcludeMarkers   []string `yaml:"exclude_markers,omitempty"`
	Quality          int      `yaml:"quality,omitempty"`
	PNGQuality       int      `yaml:"png_quality,omitempty"`
	Widths           []int    `yaml:"widths,omitempty"`
	WebP             *bool    `yaml:"webp,omitempty"`
	ResponsiveWebP   *bool    `yaml:"responsive_webp,omitempty"`
	OptimizeOriginal *bool    `yaml:"optimize_original,omitempty"`
	StripMetadata    *bool    `yaml:"strip_metadata,omitempty"`
}

// VideoConfig содержит варианты видео.
type VideoConfig struct {
	Enabled          *bool         `yaml:"enabled,omitempty"`
	Extensions       []string      `yaml:"extensions,omitempty"`
	ExcludeMarkers   []string      `yaml:"exclude_markers,omitempty"`
	Codec            string        `yaml:"codec,omitempty"`
	CRF              *int          `yaml:"crf,omitempty"`
	Preset           string        `yaml:"preset,omitempty"`
	MaxWidth         int           `yaml:"max_width,omitempty"`
	MaxHeight        int           `yaml:"max_height,omitempty"`
	MaxBitrate       Bitrate       `yaml:"max_bitrate,omitempty"`
	BufferMultiplier int           `yaml:"buffer_multiplier,omitempty"`
	AudioCodec       string        `yaml:"audio_codec,omitempty"`
	AudioBitrate     Bitrate       `yaml:"audio_bitrate,omitempty"`
	Profile          string        `yaml:"profile,omitempty"`
	Level            string        `yaml:"level,omitempty"`
	PixFmt           string        `yaml:"pix_fmt,omitempty"`
	FastStart        *bool         `yaml:"faststart,omitempty"`
	Primary          *bool         `yaml:"primary,omitempty"`
	Tiers            []VideoTier   `yaml:"tiers,omitempty"`
	Poster           *bool         `yaml:"poster,omitempty"`
	PosterOffset     time.Duration `yaml:"poster_offset,omitempty"`
	PosterQuality    int           `yaml:"poster_quality,omitempty"`
	PosterMaxWidth   int           `yaml:"poster_max_width,omitempty"`
	ExtraArgs        string        `yaml:"extra_args,omitempty"`
}

// ProcessingConfig содержит настройки обработки.
type ProcessingConfig struct {
	// Profile - встроенный профиль, применяется до остальных полей.
	Profile      string            `yaml:"profile,omitempty"`
	Workers      int               `yaml:"workers,omitempty"`
	VideoWorkers int               `yaml:"video_workers,omitempty"`
	DryRun       bool              `yaml:"dry_run,omitempty"`
	Verbose      bool              `yaml:"verbose,omitempty"`
	JSONLogs     bool              `yaml:"json_logs,omitempty"`
	NoProgress   bool              `yaml:"no_progress,omitempty"`
	NoJournal    bool              `yaml:"no_journal,omitempty"`
	MinFreeDisk  datasize.ByteSize `yaml:"min_free_disk,omitempty"`
	ImageTimeout time.Duration     `yaml:"image_timeout,omitempty"`
	VideoTimeout time.Duration     `yaml:"video_timeout,omitempty"`
}

// ManifestConfig содержит настройки отчётов.
type ManifestConfig struct {
	// Listing - all или succeeded.
	Listing string `yaml:"listing,omitempty"`

	// Outcomes - добавлять раздел с результатами задач.
	Outcomes bool `yaml:"outcomes,omitempty"`
}

// DefaultConfigPaths возвращает список путей для поиска конфигурационного файла.
// Поиск выполняется в следующем порядке:
// 1. ./mediaopt.yaml (текущая директория)
// 2. ./mediaopt.yml
// 3. ~/.config/mediaopt/config.yaml
// 4. ~/.config/mediaopt/config.yml
func DefaultConfigPaths() []string {
	paths := []string{
		"mediaopt.yaml",
		"mediaopt.yml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "mediaopt", "config.yaml"),
			filepath.Join(home, ".config", "mediaopt", "config.yml"),
		)
	}

	return paths
}

// LoadFromFile загружает конфигурацию из указанного файла.
// Возвращает nil, nil если файл не существует.
func LoadFromFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("не удалось прочитать файл конфигурации %s: %w", path, err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("ошибка парсинга YAML в %s: %w", path, err)
	}

	return &fc, nil
}

// FindAndLoadConfig ищет и загружает конфигурационный файл из стандартных путей.
// Если configPath указан явно, использует только его.
// Возвращает nil, "", nil если файл не найден.
func FindAndLoadConfig(configPath string) (*FileConfig, string, error) {
	if configPath != "" {
		fc, err := LoadFromFile(configPath)
		if err != nil {
			return nil, "", err
		}
		if fc == nil {
			return nil, "", fmt.Errorf("файл конфигурации не найден: %s", configPath)
		}
		return fc, configPath, nil
	}

	for _, path := range DefaultConfigPaths() {
		fc, err := LoadFromFile(path)
		if err != nil {
			return nil, "", err
		}
		if fc != nil {
			return fc, path, nil
		}
	}

	return nil, "", nil
}

// SaveToFile сохраняет конфигурацию в YAML файл.
func (fc *FileConfig) SaveToFile(path string) error {
	data, err := yaml.Marshal(fc)
	if err != nil {
		return fmt.Errorf("не удалось сериализовать конфигурацию: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyToConfig применяет настройки из файла к основной конфигурации.
// CLI флаги имеют приоритет над файлом конфигурации, поэтому
// эта функция должна вызываться до парсинга CLI флагов.
func (fc *FileConfig) ApplyToConfig(cfg *Config) error {
	if fc == nil {
		return nil
	}

	// Профиль сбрасывает каталог вариантов, поэтому идёт первым
	if fc.Processing != nil && fc.Processing.Profile != "" {
		if !cfg.ApplyProfile(fc.Processing.Profile) {
			return fmt.Errorf("неизвестный профиль: %s (доступны: %v)", fc.Processing.Profile, ValidProfiles())
		}
	}

	fc.applyPaths(cfg)
	fc.applyImages(cfg)
	fc.applyVideo(cfg)

	// Processing
	if p := fc.Processing; p != nil {
		if p.Workers > 0 {
			cfg.Workers = p.Workers
		}
		if p.VideoWorkers > 0 {
			cfg.VideoWorkers = p.VideoWorkers
		}
		if p.DryRun {
			cfg.DryRun = true
		}
		if p.Verbose {
			cfg.Verbose = true
		}
		if p.JSONLogs {
			cfg.JSONLogs = true
		}
		if p.NoProgress {
			cfg.NoProgress = true
		}
		if p.NoJournal {
			cfg.NoJournal = true
		}
		if p.MinFreeDisk > 0 {
			cfg.MinFreeDisk = p.MinFreeDisk
		}
		if p.ImageTimeout > 0 {
			cfg.ImageTimeout = p.ImageTimeout
		}
		if p.VideoTimeout > 0 {
			cfg.VideoTimeout = p.VideoTimeout
		}
	}

	// Manifest
	if m := fc.Manifest; m != nil {
		if m.Listing != "" {
			cfg.ManifestListing = ManifestListing(m.Listing)
		}
		if m.Outcomes {
			cfg.ManifestOutcomes = true
		}
	}

	return nil
}

func (fc *FileConfig) applyPaths(cfg *Config) {
	p := fc.Paths
	if p == nil {
		return
	}
	setString(&cfg.ProjectRoot, p.Root)
	setString(&cfg.ImagesDir, p.Images)
	setString(&cfg.VideosDir, p.Videos)
	setString(&cfg.DBPath, p.DB)
	setString(&cfg.VipsPath, p.Vips)
	setString(&cfg.FFmpegPath, p.FFmpeg)
	setString(&cfg.FFprobePath, p.FFprobe)
	setString(&cfg.ImageManifestPath, p.ImageManifest)
	setString(&cfg.VideoManifestPath, p.VideoManifest)
}

func (fc *FileConfig) applyImages(cfg *Config) {
	im := fc.Images
	if im == nil {
		return
	}
	s := &cfg.Spec.Image
	setBool(&cfg.RunImages, im.Enabled)
	if len(im.Extensions) > 0 {
		s.Extensions = im.Extensions
	}
	if len(im.ExcludeMarkers) > 0 {
		s.ExcludeMarkers = im.ExcludeMarkers
	}
	setInt(&s.Quality, im.Quality)
	setInt(&s.PNGQuality, im.PNGQuality)
	if len(im.Widths) > 0 {
		s.Widths = im.Widths
	}
	setBool(&s.WebP, im.WebP)
	setBool(&s.ResponsiveWebP, im.ResponsiveWebP)
	setBool(&s.OptimizeOriginal, im.OptimizeOriginal)
	setBool(&s.StripMetadata, im.StripMetadata)
}

func (fc *FileConfig) applyVideo(cfg *Config) {
	v := fc.Video
	if v == nil {
		return
	}
	s := &cfg.Spec.Video
	setBool(&cfg.RunVideos, v.Enabled)
	if len(v.Extensions) > 0 {
		s.Extensions = v.Extensions
	}
	if len(v.ExcludeMarkers) > 0 {
		s.ExcludeMarkers = v.ExcludeMarkers
	}
	setString(&s.Codec, v.Codec)
	if v.CRF != nil {
		s.CRF = *v.CRF
	}
	setString(&s.Preset, v.Preset)
	setInt(&s.MaxWidth, v.MaxWidth)
	setInt(&s.MaxHeight, v.MaxHeight)
	if v.MaxBitrate > 0 {
		s.MaxBitrate = v.MaxBitrate
	}
	setInt(&s.BufferMultiplier, v.BufferMultiplier)
	setString(&s.AudioCodec, v.AudioCodec)
	if v.AudioBitrate > 0 {
		s.AudioBitrate = v.AudioBitrate
	}
	setString(&s.Profile, v.Profile)
	setString(&s.Level, v.Level)
	setString(&s.PixFmt, v.PixFmt)
	setBool(&s.FastStart, v.FastStart)
	setBool(&s.Primary, v.Primary)
	if v.Tiers != nil {
		s.Tiers = v.Tiers
	}
	setBool(&s.Poster, v.Poster)
	if v.PosterOffset > 0 {
		s.PosterOffset = v.PosterOffset
	}
	setInt(&s.PosterQuality, v.PosterQuality)
	setInt(&s.PosterMaxWidth, v.PosterMaxWidth)
	setString(&s.ExtraArgs, v.ExtraArgs)
}

// FromConfig строит FileConfig из текущей конфигурации (для сохранения профилей).
func FromConfig(cfg *Config) *FileConfig {
	img := cfg.Spec.Image
	vid := cfg.Spec.Video
	crf := vid.CRF

	return &FileConfig{
		Paths: &PathsConfig{
			Root:   cfg.ProjectRoot,
			Images: cfg.ImagesDir,
			Videos: cfg.VideosDir,
		},
		Images: &ImagesConfig{
			Enabled:          boolPtr(cfg.RunImages),
			Extensions:       img.Extensions,
			ExcludeMarkers:   img.ExcludeMarkers,
			Quality:          img.Quality,
			PNGQuality:       img.PNGQuality,
			Widths:           img.Widths,
			WebP:             boolPtr(img.WebP),
			ResponsiveWebP:   boolPtr(img.ResponsiveWebP),
			OptimizeOriginal: boolPtr(img.OptimizeOriginal),
			StripMetadata:    boolPtr(img.StripMetadata),
		},
		Video: &VideoConfig{
			Enabled:          boolPtr(cfg.RunVideos),
			Extensions:       vid.Extensions,
			ExcludeMarkers:   vid.ExcludeMarkers,
			Codec:            vid.Codec,
			CRF:              &crf,
			Preset:           vid.Preset,
			MaxWidth:         vid.MaxWidth,
			MaxHeight:        vid.MaxHeight,
			MaxBitrate:       vid.MaxBitrate,
			BufferMultiplier: vid.BufferMultiplier,
			AudioCodec:       vid.AudioCodec,
			AudioBitrate:     vid.AudioBitrate,
			Profile:          vid.Profile,
			Level:            vid.Level,
			PixFmt:           vid.PixFmt,
			FastStart:        boolPtr(vid.FastStart),
			Primary:          boolPtr(vid.Primary),
			Tiers:            vid.Tiers,
			Poster:           boolPtr(vid.Poster),
			PosterOffset:     vid.PosterOffset,
			PosterQuality:    vid.PosterQuality,
			PosterMaxWidth:   vid.PosterMaxWidth,
			ExtraArgs:        vid.ExtraArgs,
		},
		Processing: &ProcessingConfig{
			Workers:      cfg.Workers,
			VideoWorkers: cfg.VideoWorkers,
			MinFreeDisk:  cfg.MinFreeDisk,
		},
		Manifest: &ManifestConfig{
			Listing:  string(cfg.ManifestListing),
			Outcomes: cfg.ManifestOutcomes,
		},
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func boolPtr(v bool) *bool {
	return &v
}

// GenerateExampleConfig генерирует пример конфигурационного файла.
func GenerateExampleConfig() string {
	return `# mediaopt configuration file
# Все параметры опциональны - если не указаны, используются значения по умолчанию.
# CLI флаги имеют приоритет над этим файлом.

paths:
  # Корень проекта: сюда пишутся RESPONSIVE_IMAGES.md и VIDEO_OPTIMIZATION.md
  root: "."
  images: "public/images"
  videos: "public/videos"
  # Пути к инструментам (по умолчанию автопоиск)
  vips: ""
  ffmpeg: ""
  ffprobe: ""

images:
  enabled: true
  extensions: [jpg, jpeg, png]
  quality: 85
  # Качество квантования палитры PNG
  png_quality: 80
  widths: [400, 800, 1200, 1600]
  webp: true
  responsive_webp: true
  optimize_original: true

video:
  enabled: true
  crf: 28
  preset: fast
  max_width: 1920
  max_height: 1080
  max_bitrate: 2M
  buffer_multiplier: 2
  audio_bitrate: 128k
  tiers:
    - {name: low, width: 640, max_bitrate: 500k}
    - {name: medium, width: 1280, max_bitrate: 1M}
    - {name: high, width: 1920, max_bitrate: 2M}
  poster: true
  poster_offset: 1s
  # Дополнительные аргументы ffmpeg
  extra_args: ""

processing:
  # Профиль: default, mobile, hq
  profile: default
  workers: 4
  video_workers: 1
  # Не начинать исходник, если свободного места меньше
  min_free_disk: 500MB
  dry_run: false
  verbose: false

manifest:
  # all - все найденные файлы, succeeded - только полностью успешные
  listing: all
  outcomes: false
`
}
