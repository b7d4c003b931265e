// Package worker содержит пул воркеров для параллельной обработки исходников.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/artemshloyda/mediaopt/internal/config"
	"github.com/artemshloyda/mediaopt/internal/media"
	"github.com/artemshloyda/mediaopt/internal/planner"
	"github.com/artemshloyda/mediaopt/internal/probe"
	"github.com/artemshloyda/mediaopt/internal/progress"
)

// Stats содержит статистику обработки.
type Stats struct {
	// Assets - количество обработанных исходников.
	Assets int64

	// Succeeded - количество успешных задач.
	Succeeded int64

	// Failed - количество задач с ошибками.
	Failed int64

	// Skipped - количество пропущенных задач.
	Skipped int64

	// InputBytes - общий размер исходников.
	InputBytes int64

	// OutputBytes - общий размер созданных файлов.
	OutputBytes int64
}

// Tasks возвращает общее количество задач.
func (s Stats) Tasks() int64 {
	return s.Succeeded + s.Failed + s.Skipped
}

// Add суммирует статистику двух запусков.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Assets:      s.Assets + o.Assets,
		Succeeded:   s.Succeeded + o.Succeeded,
		Failed:      s.Failed + o.Failed,
		Skipped:     s.Skipped + o.Skipped,
		InputBytes:  s.InputBytes + o.InputBytes,
		OutputBytes: s.OutputBytes + o.OutputBytes,
	}
}

// FormatBytes форматирует байты в человекочитаемый формат.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// Invoker выполняет одну задачу.
type Invoker interface {
	Invoke(ctx context.Context, task media.DerivationTask, dims *probe.Info) media.TaskOutcome
}

// Options содержит зависимости пула.
type Options struct {
	// Workers - количество параллельно обрабатываемых исходников.
	Workers int

	// Spec, Layout - входные данные планировщика.
	Spec   *config.VariantSpec
	Layout config.Layout

	Invoker Invoker
	Prober  probe.Prober

	// Guard - проверка свободного места (nil = не проверять).
	Guard *DiskGuard

	// Progress - прогресс-бар (опционально).
	Progress *progress.Bar

	// Verbose - выводить строку на каждый исходник.
	Verbose bool

	Logger *zap.Logger
}

// Pool управляет пулом воркеров для обработки исходников.
// Исходники обрабатываются параллельно, задачи одного исходника - строго по порядку.
type Pool struct {
	opts  Options
	stats Stats
}

// New создаёт новый пул воркеров.
func New(opts Options) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Pool{opts: opts}
}

// Process обрабатывает исходники и возвращает отчёты в порядке входного списка.
// Исходники с одинаковым базовым именем пишут в одни и те же файлы
// (dog.jpg и dog.png -> webp/dog.webp), поэтому обрабатываются одним воркером подряд.
// После отмены контекста оставшиеся исходники не запускаются: их задачи помечаются skipped.
func (p *Pool) Process(ctx context.Context, assets []media.SourceAsset) []media.AssetReport {
	reports := make([]media.AssetReport, len(assets))
	groups := make(chan []int)

	var wg sync.WaitGroup

	// Запускаем воркеров
	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for group := range groups {
				for _, idx := range group {
					reports[idx] = p.processAsset(ctx, assets[idx])
				}
			}
		}()
	}

	for _, group := range groupByBaseName(assets) {
		groups <- group
	}
	close(groups)

	// Ждём завершения всех воркеров
	wg.Wait()

	return reports
}

// groupByBaseName группирует индексы исходников по базовому имени без учёта регистра.
// Порядок групп и порядок внутри группы совпадают с входным списком.
func groupByBaseName(assets []media.SourceAsset) [][]int {
	var groups [][]int
	pos := make(map[string]int, len(assets))

	for i, a := range assets {
		key := strings.ToLower(a.BaseName)
		if g, ok := pos[key]; ok {
			groups[g] = append(groups[g], i)
			continue
		}
		pos[key] = len(groups)
		groups = append(groups, []int{i})
	}

	return groups
}

// processAsset выполняет план одного исходника.
func (p *Pool) processAsset(ctx context.Context, asset media.SourceAsset) media.AssetReport {
	tasks := planner.Plan(asset, p.opts.Spec, p.opts.Layout)
	report := media.AssetReport{Asset: asset, Outcomes: make([]media.TaskOutcome, 0, len(tasks))}

	atomic.AddInt64(&p.stats.Assets, 1)
	atomic.AddInt64(&p.stats.InputBytes, asset.Size)

	if err := ctx.Err(); err != nil {
		report.Outcomes = skipAll(tasks, err)
		p.record(report)
		return report
	}

	if err := p.opts.Guard.Check(); err != nil {
		if errors.Is(err, ErrLowDisk) {
			p.opts.Logger.Warn("исходник пропущен",
				zap.String("kind", string(asset.Kind)),
				zap.String("asset", asset.Name),
				zap.Error(err),
			)
			report.Outcomes = skipAll(tasks, err)
			p.record(report)
			return report
		}
		p.opts.Logger.Warn("проверка места пропущена", zap.Error(err))
	}

	var (
		dims   *probe.Info
		probed bool
	)

	for _, task := range tasks {
		// Проба после оптимизации на месте: размеры берутся у итогового файла
		if task.NeedsDimensions() && !probed {
			probed = true
			info, err := p.opts.Prober.Probe(ctx, asset)
			if err != nil {
				p.opts.Logger.Warn("не удалось определить размеры",
					zap.String("kind", string(asset.Kind)),
					zap.String("asset", asset.Name),
					zap.Error(err),
				)
			} else {
				dims = info
				p.opts.Logger.Debug("размеры исходника",
					zap.String("asset", asset.Name),
					zap.String("resolution", info.Resolution()),
				)
			}
		}

		outcome := p.opts.Invoker.Invoke(ctx, task, dims)
		if !outcome.Status.Terminal() {
			outcome.Err = fmt.Errorf("задача вернула незавершённое состояние %q", outcome.Status)
			outcome.Status = media.StatusFailed
		}
		if outcome.Status == media.StatusFailed {
			p.logFailure(outcome)
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	p.record(report)
	return report
}

// skipAll помечает все задачи пропущенными с одной причиной.
func skipAll(tasks []media.DerivationTask, err error) []media.TaskOutcome {
	out := make([]media.TaskOutcome, len(tasks))
	for i, t := range tasks {
		out[i] = media.TaskOutcome{Task: t, Status: media.StatusSkipped, Err: err}
	}
	return out
}

// record обновляет статистику и прогресс по отчёту исходника.
func (p *Pool) record(report media.AssetReport) {
	succeeded := report.Count(media.StatusSucceeded)
	failed := report.Count(media.StatusFailed)
	skipped := report.Count(media.StatusSkipped)

	atomic.AddInt64(&p.stats.Succeeded, int64(succeeded))
	atomic.AddInt64(&p.stats.Failed, int64(failed))
	atomic.AddInt64(&p.stats.Skipped, int64(skipped))
	for _, o := range report.Outcomes {
		atomic.AddInt64(&p.stats.OutputBytes, o.OutputSize)
	}

	bar := p.opts.Progress
	if bar == nil {
		return
	}

	switch {
	case failed > 0:
		bar.IncrementFailed()
	case succeeded == 0 && skipped > 0:
		bar.IncrementSkipped()
	default:
		bar.Increment()
	}

	if p.opts.Verbose {
		icon := "✅"
		if failed > 0 {
			icon = "❌"
		} else if succeeded == 0 && skipped > 0 {
			icon = "⏭️ "
		}
		bar.WriteMessage("%s %s (%d/%d)\n", icon, report.Asset.Name, succeeded, len(report.Outcomes))
	}
}

// logFailure логирует ошибку задачи.
func (p *Pool) logFailure(o media.TaskOutcome) {
	p.opts.Logger.Error("задача завершилась с ошибкой",
		zap.String("kind", string(o.Task.Asset.Kind)),
		zap.String("asset", o.Task.Asset.Name),
		zap.String("task", string(o.Task.Kind)),
		zap.String("variant", o.Task.Variant),
		zap.String("target", o.Task.Target),
		zap.Error(o.Err),
	)
}

// GetStats возвращает текущую статистику.
func (p *Pool) GetStats() Stats {
	return Stats{
		Assets:      atomic.LoadInt64(&p.stats.Assets),
		Succeeded:   atomic.LoadInt64(&p.stats.Succeeded),
		Failed:      atomic.LoadInt64(&p.stats.Failed),
		Skipped:     atomic.LoadInt64(&p.stats.Skipped),
		InputBytes:  atomic.LoadInt64(&p.stats.InputBytes),
		OutputBytes: atomic.LoadInt64(&p.stats.OutputBytes),
	}
}

/*
Возможные расширения:
- Добавить retry логику для failed задач
- Добавить rate limiting
- Делить воркеры между изображениями и видео в одном пуле
*/
