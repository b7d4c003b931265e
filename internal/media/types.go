// Package media содержит доменные типы пайплайна: исходные файлы, задачи и их результаты.
package media

import (
	"path/filepath"
	"strings"
	"time"
)

// Kind определяет тип медиафайла.
type Kind string

const (
	// KindImage - растровые изображения.
	KindImage Kind = "image"
	// KindVideo - видеофайлы.
	KindVideo Kind = "video"
)

// SourceAsset представляет один исходный файл, найденный при сканировании.
// Не меняется в течение запуска.
type SourceAsset struct {
	// Path - абсолютный путь к файлу.
	Path string

	// Name - имя файла с расширением.
	Name string

	// BaseName - имя файла без расширения.
	BaseName string

	// Ext - расширение с точкой, регистр сохраняется.
	Ext string

	// Kind - тип медиа.
	Kind Kind

	// Size - размер в байтах на момент сканирования.
	Size int64

	// ModTime - время модификации на момент сканирования.
	ModTime time.Time
}

// NewSourceAsset заполняет производные поля по пути к файлу.
func NewSourceAsset(path string, kind Kind) SourceAsset {
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	return SourceAsset{
		Path:     path,
		Name:     name,
		BaseName: strings.TrimSuffix(name, ext),
		Ext:      ext,
		Kind:     kind,
	}
}

// TaskKind определяет вид производной задачи.
type TaskKind string

const (
	// TaskOptimizeOriginal - оптимизация исходника на месте.
	TaskOptimizeOriginal TaskKind = "optimize-original"
	// TaskFormatConvert - конвертация в другой формат (webp, основной mp4).
	TaskFormatConvert TaskKind = "format-convert"
	// TaskResizeVariant - вариант изображения под ширину.
	TaskResizeVariant TaskKind = "resize-variant"
	// TaskQualityTier - видео-ступень качества (low/medium/high).
	TaskQualityTier TaskKind = "quality-tier"
	// TaskPosterExtract - извлечение кадра-постера.
	TaskPosterExtract TaskKind = "poster-extract"
)

// TaskParams содержит параметры одной задачи.
// Нулевые значения означают "не задано".
type TaskParams struct {
	// Format - выходной формат (jpg, png, webp, mp4).
	Format string

	// Quality - качество изображения (1-100) или q:v для постера.
	Quality int

	// PNGQuality - качество квантования палитры PNG.
	PNGQuality int

	// StripMetadata - удалять метаданные.
	StripMetadata bool

	// Width, Height - потолок размеров (0 = без ограничения).
	Width  int
	Height int

	// VideoCodec - видеокодек ffmpeg.
	VideoCodec string

	// CRF - constant rate factor.
	CRF int

	// Preset - пресет скорости энкодера.
	Preset string

	// MaxBitrate - потолок битрейта, бит/с.
	MaxBitrate int64

	// BufSize - размер буфера VBV, бит/с.
	BufSize int64

	// AudioCodec, AudioBitrate - параметры аудио.
	AudioCodec   string
	AudioBitrate int64

	// Profile, Level, PixFmt - параметры совместимости H.264.
	Profile string
	Level   string
	PixFmt  string

	// FastStart - перенос moov atom в начало для прогрессивной загрузки.
	FastStart bool

	// SeekOffset - смещение кадра для постера.
	SeekOffset time.Duration

	// ExtraArgs - дополнительные аргументы энкодера.
	ExtraArgs []string
}

// DerivationTask - одна единица работы: один выходной файл из одного исходника.
type DerivationTask struct {
	// Asset - исходный файл.
	Asset SourceAsset

	// Kind - вид задачи.
	Kind TaskKind

	// Variant - короткая метка варианта (webp, 400w, 400w.webp, low, optimized, poster).
	Variant string

	// Target - абсолютный путь результата.
	Target string

	// Params - параметры.
	Params TaskParams
}

// NeedsDimensions сообщает, нужны ли задаче размеры исходника.
func (t DerivationTask) NeedsDimensions() bool {
	switch t.Kind {
	case TaskResizeVariant, TaskQualityTier:
		return true
	case TaskFormatConvert:
		return t.Asset.Kind == KindVideo
	}
	return false
}

// TaskStatus - состояние задачи.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusSucceeded TaskStatus = "succeeded"
	StatusFailed    TaskStatus = "failed"
	StatusSkipped   TaskStatus = "skipped"
)

// Terminal возвращает true для конечных состояний.
func (s TaskStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusSkipped
}

// TaskOutcome - результат выполнения одной задачи.
type TaskOutcome struct {
	// Task - исходная задача.
	Task DerivationTask

	// Status - итоговое состояние.
	Status TaskStatus

	// Err - ошибка (для failed и skipped).
	Err error

	// OutputSize - размер результата в байтах (0 если неизвестен).
	OutputSize int64

	// Duration - время выполнения.
	Duration time.Duration

	// Command - argv запущенного процесса.
	Command []string
}

// Succeeded возвращает true при успешном выполнении.
func (o TaskOutcome) Succeeded() bool {
	return o.Status == StatusSucceeded
}

// ErrorMessage возвращает текст ошибки или пустую строку.
func (o TaskOutcome) ErrorMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// AssetReport собирает результаты всех задач одного исходника в порядке выполнения.
type AssetReport struct {
	Asset    SourceAsset
	Outcomes []TaskOutcome
}

// Count возвращает число задач с указанным статусом.
func (r AssetReport) Count(status TaskStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// AllSucceeded возвращает true, если все задачи успешны.
// Исходник без задач считается успешным.
func (r AssetReport) AllSucceeded() bool {
	return r.Count(StatusSucceeded) == len(r.Outcomes)
}

// FailedVariants возвращает метки неуспешных вариантов.
func (r AssetReport) FailedVariants() []string {
	var out []string
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed || o.Status == StatusSkipped {
			out = append(out, o.Task.Variant)
		}
	}
	return out
}
