// Package converter запускает внешние инструменты (vips, ffmpeg) для производных задач.
//
// Каждый результат сначала пишется во временный файл рядом с целью и
// переименовывается только при успехе, поэтому незаконченный вывод
// никогда не лежит под финальным именем. Для оптимизации на месте целью
// является сам исходник: при ошибке он остаётся побайтно прежним.
package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/artemshloyda/mediaopt/internal/media"
	"github.com/artemshloyda/mediaopt/internal/probe"
)

var (
	// ErrNoDimensions - задаче нужны размеры исходника, а проба не удалась.
	ErrNoDimensions = errors.New("размеры исходника неизвестны")

	// ErrDryRun - задача не выполнялась в режиме симуляции.
	ErrDryRun = errors.New("dry-run")

	// ErrEmptyOutput - процесс завершился успешно, но результата нет.
	ErrEmptyOutput = errors.New("инструмент не создал результат")
)

// Invoker превращает задачу в вызов инструмента и атомарно публикует результат.
type Invoker struct {
	// VipsPath, FFmpegPath - пути к инструментам.
	VipsPath   string
	FFmpegPath string

	// Runner - запуск процессов.
	Runner Runner

	// ImageTimeout, VideoTimeout - таймаут одного процесса (0 = без ограничения).
	ImageTimeout time.Duration
	VideoTimeout time.Duration

	// DryRun - только строить команды.
	DryRun bool

	// Logger - логгер.
	Logger *zap.Logger
}

// New создаёт Invoker с ExecRunner.
func New(vipsPath, ffmpegPath string, logger *zap.Logger) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{
		VipsPath:     vipsPath,
		FFmpegPath:   ffmpegPath,
		Runner:       ExecRunner{},
		ImageTimeout: 5 * time.Minute,
		VideoTimeout: 30 * time.Minute,
		Logger:       logger,
	}
}

// Command возвращает argv задачи с записью в output.
func (inv *Invoker) Command(task media.DerivationTask, dims *probe.Info, output string) ([]string, error) {
	switch task.Asset.Kind {
	case media.KindImage:
		return vipsArgs(inv.VipsPath, task, dims, output)
	case media.KindVideo:
		return ffmpegArgs(inv.FFmpegPath, task, dims, output)
	}
	return nil, fmt.Errorf("неизвестный тип медиа: %s", task.Asset.Kind)
}

// Invoke выполняет задачу. Ошибки возвращаются в TaskOutcome, а не отдельно.
func (inv *Invoker) Invoke(ctx context.Context, task media.DerivationTask, dims *probe.Info) media.TaskOutcome {
	start := time.Now()
	outcome := media.TaskOutcome{Task: task, Status: media.StatusRunning}

	finish := func(status media.TaskStatus, err error) media.TaskOutcome {
		outcome.Status = status
		outcome.Err = err
		outcome.Duration = time.Since(start)
		return outcome
	}

	if task.NeedsDimensions() && dims == nil {
		return finish(media.StatusSkipped, ErrNoDimensions)
	}

	if inv.DryRun {
		argv, err := inv.Command(task, dims, task.Target)
		if err != nil {
			return finish(media.StatusFailed, err)
		}
		outcome.Command = argv
		return finish(media.StatusSkipped, ErrDryRun)
	}

	if err := ctx.Err(); err != nil {
		return finish(media.StatusSkipped, err)
	}

	dir := filepath.Dir(task.Target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return finish(media.StatusFailed, fmt.Errorf("не удалось создать директорию %s: %w", dir, err))
	}

	tmpPath := TempPath(task.Target)
	argv, err := inv.Command(task, dims, tmpPath)
	if err != nil {
		return finish(media.StatusFailed, err)
	}
	outcome.Command = argv

	inv.Logger.Debug("запуск",
		zap.String("variant", task.Variant),
		zap.String("command", strings.Join(argv, " ")),
	)

	runCtx := ctx
	if timeout := inv.timeout(task); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := inv.Runner.Run(runCtx, argv); err != nil {
		_ = os.Remove(tmpPath)
		return finish(media.StatusFailed, err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(tmpPath)
		return finish(media.StatusFailed, fmt.Errorf("%w: %s", ErrEmptyOutput, filepath.Base(task.Target)))
	}

	if err := os.Rename(tmpPath, task.Target); err != nil {
		_ = os.Remove(tmpPath)
		return finish(media.StatusFailed, fmt.Errorf("не удалось переименовать %s -> %s: %w", tmpPath, task.Target, err))
	}

	outcome.OutputSize = info.Size()
	return finish(media.StatusSucceeded, nil)
}

func (inv *Invoker) timeout(task media.DerivationTask) time.Duration {
	if task.Asset.Kind == media.KindVideo {
		return inv.VideoTimeout
	}
	return inv.ImageTimeout
}

// TempPath возвращает путь временного файла: скрытый сосед цели со случайной
// меткой и тем же расширением (.dog.1f3a9c2e.part.webp).
// Расширение сохраняется, потому что инструменты выбирают формат по нему.
// Метка своя у каждого вызова, так что два процесса не пишут в один временный файл.
func TempPath(target string) string {
	dir := filepath.Dir(target)
	name := filepath.Base(target)
	ext := filepath.Ext(name)
	tag := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return filepath.Join(dir, "."+strings.TrimSuffix(name, ext)+"."+tag+".part"+ext)
}

/*
Возможные расширения:
- Повтор ffmpeg с упрощёнными параметрами при известных ошибках
- Проверка, что результат не больше исходника (для оптимизации на месте)
*/
