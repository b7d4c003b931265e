// Package pipeline запускает обработку одного типа медиа целиком:
// проверка инструментов, директории, поиск исходников, пул воркеров, отчёт и журнал.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/artemshloyda/mediaopt/internal/config"
	"github.com/artemshloyda/mediaopt/internal/converter"
	"github.com/artemshloyda/mediaopt/internal/manifest"
	"github.com/artemshloyda/mediaopt/internal/media"
	"github.com/artemshloyda/mediaopt/internal/probe"
	"github.com/artemshloyda/mediaopt/internal/progress"
	"github.com/artemshloyda/mediaopt/internal/scanner"
	"github.com/artemshloyda/mediaopt/internal/storage"
	"github.com/artemshloyda/mediaopt/internal/toolfinder"
	"github.com/artemshloyda/mediaopt/internal/worker"
)

// ErrPrecondition - пайплайн остановлен до запуска задач (нет инструмента или входной директории).
var ErrPrecondition = errors.New("предусловие не выполнено")

// Tools - найденные внешние инструменты.
type Tools struct {
	Vips    *toolfinder.ToolInfo
	FFmpeg  *toolfinder.ToolInfo
	FFprobe *toolfinder.ToolInfo
}

// Locator ищет инструменты, нужные пайплайну типа kind.
type Locator func(ctx context.Context, kind media.Kind) (*Tools, error)

// LocateTools ищет инструменты с учётом явных путей из конфигурации.
func LocateTools(cfg *config.Config) Locator {
	return func(ctx context.Context, kind media.Kind) (*Tools, error) {
		tools := &Tools{}
		var err error

		switch kind {
		case media.KindImage:
			tools.Vips, err = toolfinder.NewFinder(toolfinder.Vips, cfg.VipsPath).Find(ctx)
		case media.KindVideo:
			tools.FFmpeg, err = toolfinder.NewFinder(toolfinder.FFmpeg, cfg.FFmpegPath).Find(ctx)
			if err == nil {
				tools.FFprobe, err = toolfinder.NewFinder(toolfinder.FFprobe, cfg.FFprobePath).Find(ctx)
			}
		default:
			err = fmt.Errorf("неизвестный тип медиа: %s", kind)
		}

		if err != nil {
			return nil, err
		}
		return tools, nil
	}
}

// Journal записывает запуски и результаты задач.
type Journal interface {
	StartRun(kind media.Kind, specHash string, dryRun bool) (string, error)
	RecordReport(runID string, report media.AssetReport) error
	FinishRun(runID string, status storage.RunStatus, totals storage.RunTotals, runErr error) error
}

// Deps - подменяемые зависимости пайплайна. Нулевые значения заменяются рабочими.
type Deps struct {
	// Locate - поиск инструментов (по умолчанию LocateTools).
	Locate Locator

	// Runner - запуск процессов (по умолчанию converter.ExecRunner, stderr дублируется в Out при Verbose).
	Runner converter.Runner

	// Prober - определение размеров (по умолчанию imaging для изображений, ffprobe для видео).
	Prober probe.Prober

	// Journal - журнал запусков (nil = без журнала).
	Journal Journal

	// Out - вывод для прогресс-бара и сообщений (по умолчанию os.Stderr).
	Out io.Writer

	// Now - часы отчёта.
	Now func() time.Time

	Logger *zap.Logger
}

// Result - итог одного пайплайна.
type Result struct {
	Kind media.Kind

	// RunID - ID запуска в журнале ("" без журнала).
	RunID string

	// Reports - отчёты по исходникам в порядке обнаружения.
	Reports []media.AssetReport

	// Stats - статистика пула.
	Stats worker.Stats

	// ManifestPath - путь записанного отчёта ("" если не записан).
	ManifestPath string

	// Duration - общее время.
	Duration time.Duration
}

// Commands возвращает argv всех задач, для которых он был построен.
func (r *Result) Commands() [][]string {
	var out [][]string
	for _, rep := range r.Reports {
		for _, o := range rep.Outcomes {
			if len(o.Command) > 0 {
				out = append(out, o.Command)
			}
		}
	}
	return out
}

// Pipeline обрабатывает исходники одного типа медиа.
type Pipeline struct {
	cfg  *config.Config
	kind media.Kind
	deps Deps
}

// New создаёт пайплайн.
func New(cfg *config.Config, kind media.Kind, deps Deps) *Pipeline {
	if deps.Locate == nil {
		deps.Locate = LocateTools(cfg)
	}
	if deps.Out == nil {
		deps.Out = os.Stderr
	}
	if deps.Runner == nil {
		runner := converter.ExecRunner{}
		// В подробном режиме вывод инструментов виден в терминале
		if cfg.Verbose {
			runner.Tee = deps.Out
		}
		deps.Runner = runner
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, kind: kind, deps: deps}
}

// Kind возвращает тип медиа пайплайна.
func (p *Pipeline) Kind() media.Kind {
	return p.kind
}

// Run выполняет пайплайн.
// Ошибка возвращается только для ErrPrecondition; сбои задач остаются в Result.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	log := p.deps.Logger.With(zap.String("kind", string(p.kind)))
	layout := p.cfg.Layout()
	res := &Result{Kind: p.kind}

	res.RunID = p.startRun(log)

	abort := func(err error) (*Result, error) {
		err = fmt.Errorf("%w: %w", ErrPrecondition, err)
		p.finishRun(log, res.RunID, storage.RunAborted, worker.Stats{}, err)
		res.Duration = time.Since(start)
		return res, err
	}

	// 1. Инструменты: проверяются до любых изменений на диске
	tools, err := p.deps.Locate(ctx, p.kind)
	if err != nil {
		if !p.cfg.DryRun {
			return abort(err)
		}
		log.Warn("инструмент не найден, команды будут показаны с именем по умолчанию", zap.Error(err))
		tools = &Tools{}
	}

	// 2. Входная директория обязательна, выходные создаются
	inputDir, outputDirs := p.dirs(layout)
	if info, err := os.Stat(inputDir); err != nil || !info.IsDir() {
		return abort(fmt.Errorf("%w: %s", scanner.ErrDirectoryNotFound, inputDir))
	}

	if !p.cfg.DryRun {
		for _, dir := range outputDirs {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return abort(fmt.Errorf("не удалось создать директорию %s: %w", dir, err))
			}
		}
	}

	// 3. Поиск исходников
	assets, err := scanner.Discover(inputDir, p.kind, p.rules())
	if err != nil {
		return abort(err)
	}
	log.Info("найдены исходники", zap.Int("count", len(assets)), zap.String("dir", inputDir))

	// 4. Пул воркеров
	bar := progress.New(progress.Options{
		Total:       int64(len(assets)),
		Description: p.description(),
		Unit:        p.unit(),
		Disabled:    p.cfg.NoProgress || p.cfg.Verbose || p.cfg.DryRun,
		Writer:      p.deps.Out,
	})

	pool := worker.New(worker.Options{
		Workers:  p.workers(),
		Spec:     &p.cfg.Spec,
		Layout:   layout,
		Invoker:  p.invoker(tools, log),
		Prober:   p.prober(tools),
		Guard:    worker.NewDiskGuard(outputDirs[0], p.cfg.MinFreeDisk),
		Progress: bar,
		Verbose:  p.cfg.Verbose,
		Logger:   log,
	})

	res.Reports = pool.Process(ctx, assets)
	res.Stats = pool.GetStats()
	bar.Finish()

	// 5. Отчёт: сбой записи не влияет на результат запуска
	if !p.cfg.DryRun {
		path := p.manifestPath()
		gen := manifest.New(path, p.cfg.ProjectRoot)
		gen.Now = p.deps.Now
		err := gen.Write(manifest.RunManifest{
			Kind:            p.kind,
			Assets:          res.Reports,
			Spec:            p.cfg.Spec,
			Layout:          layout,
			Listing:         p.cfg.ManifestListing,
			IncludeOutcomes: p.cfg.ManifestOutcomes,
		})
		if err != nil {
			log.Error("не удалось записать отчёт", zap.String("path", path), zap.Error(err))
		} else {
			res.ManifestPath = path
		}
	}

	// 6. Журнал
	status := storage.RunCompleted
	if ctx.Err() != nil {
		status = storage.RunCancelled
	}
	p.recordReports(log, res.RunID, res.Reports)
	p.finishRun(log, res.RunID, status, res.Stats, nil)

	res.Duration = time.Since(start)
	return res, nil
}

// dirs возвращает входную директорию и выходные поддиректории типа.
// Первая выходная директория используется для проверки свободного места.
func (p *Pipeline) dirs(l config.Layout) (string, []string) {
	if p.kind == media.KindVideo {
		return l.VideosDir, []string{l.OptimizedDir}
	}
	return l.ImagesDir, []string{l.WebPDir, l.ResponsiveDir}
}

func (p *Pipeline) rules() scanner.Rules {
	if p.kind == media.KindVideo {
		return scanner.VideoRules(&p.cfg.Spec.Video)
	}
	return scanner.ImageRules(&p.cfg.Spec.Image)
}

func (p *Pipeline) workers() int {
	if p.kind == media.KindVideo {
		return p.cfg.VideoWorkers
	}
	return p.cfg.Workers
}

func (p *Pipeline) description() string {
	if p.kind == media.KindVideo {
		return "🎬 Видео"
	}
	return "🖼  Изображения"
}

func (p *Pipeline) unit() string {
	if p.kind == media.KindVideo {
		return "видео"
	}
	return "изобр."
}

func (p *Pipeline) manifestPath() string {
	if p.kind == media.KindVideo {
		return p.cfg.VideoManifestPath
	}
	return p.cfg.ImageManifestPath
}

// invoker собирает Invoker из найденных инструментов.
func (p *Pipeline) invoker(tools *Tools, log *zap.Logger) *converter.Invoker {
	inv := converter.New(toolPath(tools.Vips, "vips"), toolPath(tools.FFmpeg, "ffmpeg"), log)
	inv.Runner = p.deps.Runner
	inv.ImageTimeout = p.cfg.ImageTimeout
	inv.VideoTimeout = p.cfg.VideoTimeout
	inv.DryRun = p.cfg.DryRun
	return inv
}

func (p *Pipeline) prober(tools *Tools) probe.Prober {
	if p.deps.Prober != nil {
		return p.deps.Prober
	}
	return probe.ByKind{
		Image: probe.ImageProber{},
		Video: probe.NewFFprobe(toolPath(tools.FFprobe, "ffprobe")),
	}
}

func toolPath(info *toolfinder.ToolInfo, fallback string) string {
	if info == nil || info.Path == "" {
		return fallback
	}
	return info.Path
}

func (p *Pipeline) startRun(log *zap.Logger) string {
	if p.deps.Journal == nil {
		return ""
	}
	id, err := p.deps.Journal.StartRun(p.kind, p.cfg.SpecHash(), p.cfg.DryRun)
	if err != nil {
		log.Warn("журнал недоступен", zap.Error(err))
		return ""
	}
	return id
}

func (p *Pipeline) recordReports(log *zap.Logger, runID string, reports []media.AssetReport) {
	if p.deps.Journal == nil || runID == "" {
		return
	}
	for _, r := range reports {
		if err := p.deps.Journal.RecordReport(runID, r); err != nil {
			log.Warn("не удалось записать результаты в журнал", zap.String("asset", r.Asset.Name), zap.Error(err))
		}
	}
}

func (p *Pipeline) finishRun(log *zap.Logger, runID string, status storage.RunStatus, stats worker.Stats, runErr error) {
	if p.deps.Journal == nil || runID == "" {
		return
	}
	totals := storage.RunTotals{
		Assets:    stats.Assets,
		Succeeded: stats.Succeeded,
		Failed:    stats.Failed,
		Skipped:   stats.Skipped,
	}
	if err := p.deps.Journal.FinishRun(runID, status, totals, runErr); err != nil {
		log.Warn("не удалось завершить запуск в журнале", zap.Error(err))
	}
}

/*
Возможные расширения:
- Общий пул для изображений и видео с раздельными лимитами
- Инкрементальный режим: пропуск исходников, у которых все результаты новее
*/
