package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"
)

// VariantSpec - статический каталог вариантов для каждого типа медиа.
// Читается планировщиком и исполнителем, в течение запуска не меняется.
type VariantSpec struct {
	Image ImageSpec `json:"image"`
	Video VideoSpec `json:"video"`
}

// ImageSpec описывает варианты изображений.
type ImageSpec struct {
	// Extensions - расширения входных файлов (без точки, lowercase).
	Extensions []string `json:"extensions"`

	// ExcludeMarkers - подстроки имени, помечающие уже производные файлы.
	ExcludeMarkers []string `json:"exclude_markers"`

	// Quality - качество для lossy форматов (1-100).
	Quality int `json:"quality"`

	// PNGQuality - качество квантования палитры PNG (1-100).
	PNGQuality int `json:"png_quality"`

	// Widths - ширины адаптивных вариантов.
	Widths []int `json:"widths"`

	// WebP - создавать webp-копию в исходном размере.
	WebP bool `json:"webp"`

	// ResponsiveWebP - создавать webp для каждой ширины.
	ResponsiveWebP bool `json:"responsive_webp"`

	// OptimizeOriginal - пережимать исходник на месте.
	OptimizeOriginal bool `json:"optimize_original"`

	// StripMetadata - удалять метаданные.
	StripMetadata bool `json:"strip_metadata"`
}

// VideoTier - именованная ступень качества.
type VideoTier struct {
	// Name - имя ступени, попадает в имя файла.
	Name string `json:"name" yaml:"name"`

	// Width - потолок ширины.
	Width int `json:"width" yaml:"width"`

	// MaxBitrate - потолок битрейта.
	MaxBitrate Bitrate `json:"max_bitrate" yaml:"max_bitrate"`
}

// VideoSpec описывает варианты видео.
type VideoSpec struct {
	Extensions     []string `json:"extensions"`
	ExcludeMarkers []string `json:"exclude_markers"`

	// Codec - видеокодек.
	Codec string `json:"codec"`

	// CRF - constant rate factor (меньше = лучше).
	CRF int `json:"crf"`

	// Preset - скорость энкодера.
	Preset string `json:"preset"`

	// MaxWidth, MaxHeight - потолок разрешения основной версии.
	MaxWidth  int `json:"max_width"`
	MaxHeight int `json:"max_height"`

	// MaxBitrate - потолок битрейта основной версии.
	MaxBitrate Bitrate `json:"max_bitrate"`

	// BufferMultiplier - bufsize = MaxBitrate * BufferMultiplier.
	BufferMultiplier int `json:"buffer_multiplier"`

	AudioCodec   string  `json:"audio_codec"`
	AudioBitrate Bitrate `json:"audio_bitrate"`

	// Profile, Level, PixFmt - совместимость H.264.
	Profile string `json:"profile"`
	Level   string `json:"level"`
	PixFmt  string `json:"pix_fmt"`

	// FastStart - +faststart для прогрессивной загрузки.
	FastStart bool `json:"faststart"`

	// Primary - создавать основную оптимизированную версию.
	Primary bool `json:"primary"`

	// Tiers - ступени качества в порядке создания.
	Tiers []VideoTier `json:"tiers"`

	// Poster - извлекать постер.
	Poster bool `json:"poster"`

	// PosterOffset - позиция кадра.
	PosterOffset time.Duration `json:"poster_offset"`

	// PosterQuality - q:v для JPEG постера (2-31, меньше = лучше).
	PosterQuality int `json:"poster_quality"`

	// PosterMaxWidth - потолок ширины постера.
	PosterMaxWidth int `json:"poster_max_width"`

	// ExtraArgs - дополнительные аргументы ffmpeg в shell-синтаксисе.
	ExtraArgs string `json:"extra_args,omitempty"`
}

// DefaultVariantSpec возвращает каталог вариантов по умолчанию.
func DefaultVariantSpec() VariantSpec {
	return VariantSpec{
		Image: ImageSpec{
			Extensions:       []string{"jpg", "jpeg", "png"},
			ExcludeMarkers:   []string{"webp"},
			Quality:          85,
			PNGQuality:       80,
			Widths:           []int{400, 800, 1200, 1600},
			WebP:             true,
			ResponsiveWebP:   true,
			OptimizeOriginal: true,
			StripMetadata:    true,
		},
		Video: VideoSpec{
			Extensions:       []string{"mp4", "mov", "avi", "mkv"},
			ExcludeMarkers:   []string{"optimized"},
			Codec:            "libx264",
			CRF:              28,
			Preset:           "fast",
			MaxWidth:         1920,
			MaxHeight:        1080,
			MaxBitrate:       2 * Megabit,
			BufferMultiplier: 2,
			AudioCodec:       "aac",
			AudioBitrate:     128 * Kilobit,
			Profile:          "baseline",
			Level:            "3.0",
			PixFmt:           "yuv420p",
			FastStart:        true,
			Primary:          true,
			Tiers: []VideoTier{
				{Name: "low", Width: 640, MaxBitrate: 500 * Kilobit},
				{Name: "medium", Width: 1280, MaxBitrate: 1 * Megabit},
				{Name: "high", Width: 1920, MaxBitrate: 2 * Megabit},
			},
			Poster:         true,
			PosterOffset:   time.Second,
			PosterQuality:  2,
			PosterMaxWidth: 1920,
		},
	}
}

// Validate проверяет каталог вариантов.
func (s *VariantSpec) Validate() error {
	img := &s.Image
	if img.Quality < 1 || img.Quality > 100 {
		return fmt.Errorf("качество изображений должно быть от 1 до 100, получено: %d", img.Quality)
	}
	if img.PNGQuality < 1 || img.PNGQuality > 100 {
		return fmt.Errorf("качество PNG должно быть от 1 до 100, получено: %d", img.PNGQuality)
	}
	for _, w := range img.Widths {
		if w <= 0 {
			return fmt.Errorf("ширина варианта должна быть положительной, получено: %d", w)
		}
	}

	v := &s.Video
	if v.CRF < 0 || v.CRF > 51 {
		return fmt.Errorf("CRF должен быть от 0 до 51, получено: %d", v.CRF)
	}
	if v.BufferMultiplier < 1 {
		return fmt.Errorf("множитель буфера должен быть >= 1, получено: %d", v.BufferMultiplier)
	}
	if v.Primary && (v.MaxWidth <= 0 || v.MaxHeight <= 0 || v.MaxBitrate <= 0) {
		return fmt.Errorf("для основной версии нужны max_width, max_height и max_bitrate")
	}
	// libx264 с yuv420p принимает только чётные размеры
	if v.Primary && (v.MaxWidth%2 != 0 || v.MaxHeight%2 != 0) {
		return fmt.Errorf("max_width и max_height должны быть чётными, получено: %dx%d", v.MaxWidth, v.MaxHeight)
	}
	seen := make(map[string]bool)
	for _, t := range v.Tiers {
		name := strings.ToLower(t.Name)
		if name == "" || t.Width <= 0 || t.MaxBitrate <= 0 {
			return fmt.Errorf("некорректная ступень качества: %+v", t)
		}
		if t.Width%2 != 0 {
			return fmt.Errorf("ширина ступени %q должна быть чётной, получено: %d", t.Name, t.Width)
		}
		// optimized и poster заняты под основную версию и постер
		if seen[name] || name == "optimized" || name == "poster" {
			return fmt.Errorf("имя ступени %q занято", t.Name)
		}
		seen[name] = true
	}
	if v.Poster && (v.PosterQuality < 1 || v.PosterQuality > 31) {
		return fmt.Errorf("q:v постера должен быть от 1 до 31, получено: %d", v.PosterQuality)
	}
	// 0 - без ограничения ширины постера
	if v.Poster && (v.PosterMaxWidth < 0 || v.PosterMaxWidth%2 != 0) {
		return fmt.Errorf("ширина постера должна быть чётной, получено: %d", v.PosterMaxWidth)
	}
	if _, err := v.SplitExtraArgs(); err != nil {
		return err
	}
	return nil
}

// VariantWidths возвращает уникальные положительные ширины по возрастанию:
// ровно те варианты, которые создаёт планировщик.
func (s *ImageSpec) VariantWidths() []int {
	seen := make(map[int]bool, len(s.Widths))
	out := make([]int, 0, len(s.Widths))
	for _, w := range s.Widths {
		if w > 0 && !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	sort.Ints(out)
	return out
}

// BufSize возвращает размер буфера для заданного потолка битрейта.
func (v *VideoSpec) BufSize(maxRate Bitrate) Bitrate {
	return maxRate * Bitrate(v.BufferMultiplier)
}

// SplitExtraArgs разбивает ExtraArgs на аргументы без участия shell.
func (v *VideoSpec) SplitExtraArgs() ([]string, error) {
	if strings.TrimSpace(v.ExtraArgs) == "" {
		return nil, nil
	}
	args, err := shlex.Split(v.ExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("некорректный синтаксис extra_args: %w", err)
	}
	for _, a := range args {
		if strings.ContainsAny(a, "|&;`$<>") {
			return nil, fmt.Errorf("недопустимый символ в extra_args: %s", a)
		}
	}
	return args, nil
}

// HasExtension проверяет, поддерживается ли расширение файла.
func HasExtension(exts []string, ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
