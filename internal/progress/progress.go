// Package progress предоставляет прогресс-бар с ETA для отображения обработки исходников.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Counts - счётчики исходников по итогу обработки.
type Counts struct {
	Done    int64
	Skipped int64
	Failed  int64
}

// Bar представляет прогресс-бар с поддержкой ETA.
// Нулевой или выключенный Bar работает как вывод сообщений без полосы.
type Bar struct {
	bar *progressbar.ProgressBar

	// mu защищает bar, counts и вывод.
	mu sync.Mutex

	disabled  bool
	total     int64
	counts    Counts
	startTime time.Time
	writer    io.Writer
}

// Options содержит настройки для прогресс-бара.
type Options struct {
	// Total - количество исходников.
	Total int64

	// Description - подпись (например, "🖼  Изображения").
	Description string

	// Unit - единица скорости (по умолчанию "файл").
	Unit string

	// Disabled - отключить полосу (только текстовый вывод).
	Disabled bool

	// Writer - куда выводить (по умолчанию os.Stderr).
	Writer io.Writer
}

// New создаёт новый прогресс-бар.
func New(opts Options) *Bar {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	b := &Bar{
		disabled:  opts.Disabled,
		total:     opts.Total,
		startTime: time.Now(),
		writer:    writer,
	}

	if opts.Disabled || opts.Total <= 0 {
		return b
	}

	description := opts.Description
	if description == "" {
		description = "Обработка"
	}
	unit := opts.Unit
	if unit == "" {
		unit = "файл"
	}

	b.bar = progressbar.NewOptions64(
		opts.Total,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString(unit),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]█[reset]",
			SaucerHead:    "[green]▓[reset]",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(writer)
		}),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	return b
}

// Increment отмечает исходник, у которого все задачи прошли.
func (b *Bar) Increment() {
	b.add(&b.counts.Done)
}

// IncrementSkipped отмечает исходник, задачи которого были пропущены.
func (b *Bar) IncrementSkipped() {
	b.add(&b.counts.Skipped)
}

// IncrementFailed отмечает исходник с ошибками.
func (b *Bar) IncrementFailed() {
	b.add(&b.counts.Failed)
}

func (b *Bar) add(counter *int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	*counter++

	if b.bar != nil {
		_ = b.bar.Add(1)
	}
}

// Finish завершает прогресс-бар.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar != nil {
		_ = b.bar.Finish()
	}
}

// Counts возвращает текущие счётчики.
func (b *Bar) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Duration возвращает время с начала обработки.
func (b *Bar) Duration() time.Duration {
	return time.Since(b.startTime)
}

// IsDisabled возвращает true, если полоса отключена.
func (b *Bar) IsDisabled() bool {
	return b.disabled || b.bar == nil
}

// WriteMessage выводит сообщение, временно скрывая прогресс-бар.
func (b *Bar) WriteMessage(format string, args ...interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar != nil {
		_ = b.bar.Clear()
	}

	fmt.Fprintf(b.writer, format, args...)

	if b.bar != nil {
		_ = b.bar.RenderBlank()
	}
}

/*
Возможные расширения:
- Отдельная полоса на каждый пайплайн при параллельном запуске
- Прогресс внутри видео по выводу ffmpeg -progress
*/
