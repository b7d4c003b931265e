// Package cli содержит CLI интерфейс приложения.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/artemshloyda/mediaopt/internal/config"
	"github.com/artemshloyda/mediaopt/internal/logging"
	"github.com/artemshloyda/mediaopt/internal/media"
	"github.com/artemshloyda/mediaopt/internal/pipeline"
	"github.com/artemshloyda/mediaopt/internal/storage"
	"github.com/artemshloyda/mediaopt/internal/worker"
)

var (
	// Version будет установлена при сборке.
	Version = "dev"

	// BuildTime будет установлена при сборке.
	BuildTime = "unknown"
)

// options - значения флагов. Применяются поверх файла конфигурации,
// только если флаг указан явно.
type options struct {
	configPath  string
	profile     string
	saveProfile string
	loadProfile string

	root       string
	images     string
	videos     string
	skipImages bool
	skipVideos bool

	quality            int
	pngQuality         int
	widths             []int
	noWebP             bool
	noOptimizeOriginal bool

	crf        int
	preset     string
	maxBitrate string
	noTiers    bool
	noPoster   bool
	extraArgs  string

	workers      int
	videoWorkers int
	minFreeDisk  string
	imageTimeout time.Duration
	videoTimeout time.Duration

	dbPath    string
	noJournal bool

	vipsPath    string
	ffmpegPath  string
	ffprobePath string

	listing  string
	outcomes bool

	dryRun     bool
	verbose    bool
	jsonLogs   bool
	noProgress bool
	watch      bool
}

// NewRootCmd создаёт корневую команду CLI.
func NewRootCmd() *cobra.Command {
	cmd, _ := newRootCmd()
	return cmd
}

func newRootCmd() (*cobra.Command, *options) {
	opts := &options{}
	defaults := config.DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "mediaopt",
		Short: "Оптимизация изображений и видео для веба",
		Long: `mediaopt - пакетная оптимизация медиа для статического сайта.

Изображения (vips): оптимизация на месте, WebP копии, адаптивные варианты по ширинам.
Видео (ffmpeg): оптимизированная H.264 версия, ступени качества low/medium/high, постер.
После запуска в корне проекта пишутся RESPONSIVE_IMAGES.md и VIDEO_OPTIMIZATION.md.

Повторный запуск не подхватывает собственные результаты как исходники.

Примеры:
  # Обработать public/images и public/videos в текущем проекте
  mediaopt

  # Только изображения, ширины 480 и 960
  mediaopt --skip-videos --widths 480,960

  # Облегчённый профиль для мобильного трафика
  mediaopt --profile mobile

  # Показать команды без запуска
  mediaopt --dry-run

  # После обработки следить за новыми файлами
  mediaopt --watch`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runMedia(cmd.Context(), cmd.OutOrStdout(), cfg, opts)
		},
	}

	flags := rootCmd.Flags()

	// Конфигурация
	flags.StringVar(&opts.configPath, "config", "", "Путь к YAML файлу конфигурации (по умолчанию mediaopt.yaml)")
	flags.StringVar(&opts.profile, "profile", defaults.Profile,
		fmt.Sprintf("Встроенный профиль вариантов: %s", strings.Join(config.ValidProfiles(), ", ")))
	flags.StringVar(&opts.saveProfile, "save-profile", "", "Сохранить итоговые настройки под именем")
	flags.StringVar(&opts.loadProfile, "load-profile", "", "Загрузить сохранённые настройки")

	// Пути
	flags.StringVar(&opts.root, "root", defaults.ProjectRoot, "Корень проекта")
	flags.StringVar(&opts.images, "images", defaults.ImagesDir, "Директория изображений (относительно корня)")
	flags.StringVar(&opts.videos, "videos", defaults.VideosDir, "Директория видео (относительно корня)")
	flags.BoolVar(&opts.skipImages, "skip-images", false, "Не обрабатывать изображения")
	flags.BoolVar(&opts.skipVideos, "skip-videos", false, "Не обрабатывать видео")

	// Изображения
	flags.IntVar(&opts.quality, "quality", defaults.Spec.Image.Quality, "Качество JPEG/WebP (1-100)")
	flags.IntVar(&opts.pngQuality, "png-quality", defaults.Spec.Image.PNGQuality, "Качество палитры PNG (1-100)")
	flags.IntSliceVar(&opts.widths, "widths", defaults.Spec.Image.Widths, "Ширины адаптивных вариантов")
	flags.BoolVar(&opts.noWebP, "no-webp", false, "Не создавать WebP копии")
	flags.BoolVar(&opts.noOptimizeOriginal, "no-optimize-original", false, "Не оптимизировать исходники на месте")

	// Видео
	flags.IntVar(&opts.crf, "crf", defaults.Spec.Video.CRF, "CRF видео (0-51)")
	flags.StringVar(&opts.preset, "preset", defaults.Spec.Video.Preset, "Пресет x264")
	flags.StringVar(&opts.maxBitrate, "max-bitrate", defaults.Spec.Video.MaxBitrate.String(), "Потолок битрейта основной версии")
	flags.BoolVar(&opts.noTiers, "no-tiers", false, "Не создавать ступени качества")
	flags.BoolVar(&opts.noPoster, "no-poster", false, "Не извлекать постер")
	flags.StringVar(&opts.extraArgs, "extra-args", "", "Дополнительные аргументы ffmpeg")

	// Производительность
	flags.IntVar(&opts.workers, "workers", defaults.Workers, "Параллельных изображений")
	flags.IntVar(&opts.videoWorkers, "video-workers", defaults.VideoWorkers, "Параллельных видео")
	flags.StringVar(&opts.minFreeDisk, "min-free-disk", "", "Минимум свободного места (например, 2GB)")
	flags.DurationVar(&opts.imageTimeout, "image-timeout", defaults.ImageTimeout, "Таймаут обработки одного изображения")
	flags.DurationVar(&opts.videoTimeout, "video-timeout", defaults.VideoTimeout, "Таймаут одного процесса ffmpeg")

	// Журнал
	flags.StringVar(&opts.dbPath, "db", "", "Путь к SQLite журналу (по умолчанию <root>/.mediaopt/state.sqlite)")
	flags.BoolVar(&opts.noJournal, "no-journal", false, "Не вести журнал запусков")

	// Инструменты
	flags.StringVar(&opts.vipsPath, "vips-path", "", "Путь к бинарнику vips")
	flags.StringVar(&opts.ffmpegPath, "ffmpeg-path", "", "Путь к бинарнику ffmpeg")
	flags.StringVar(&opts.ffprobePath, "ffprobe-path", "", "Путь к бинарнику ffprobe")

	// Отчёты
	flags.StringVar(&opts.listing, "manifest-listing", string(defaults.ManifestListing), "Список файлов в отчёте: all или succeeded")
	flags.BoolVar(&opts.outcomes, "manifest-outcomes", false, "Добавить в отчёт результаты задач")

	// Вывод
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Показать команды без запуска")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Подробный вывод")
	flags.BoolVar(&opts.jsonLogs, "json-logs", false, "Логи в JSON")
	flags.BoolVar(&opts.noProgress, "no-progress", false, "Отключить прогресс-бар")
	flags.BoolVar(&opts.watch, "watch", false, "После обработки следить за новыми файлами")

	// Подкоманды
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newProfilesCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd, opts
}

// buildConfig собирает конфигурацию: значения по умолчанию -> файл -> сохранённый профиль -> флаги.
func buildConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg := config.DefaultConfig()

	fc, path, err := config.FindAndLoadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	if err := fc.ApplyToConfig(cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", config.ErrInvalidConfig, path, err)
	}
	if fc != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "📄 Конфигурация: %s\n", path)
	}

	if opts.loadProfile != "" {
		pc, ppath, err := config.LoadSavedProfile(opts.loadProfile)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		if err := pc.ApplyToConfig(cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", config.ErrInvalidConfig, ppath, err)
		}
	}

	if err := applyFlags(cmd, opts, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if opts.saveProfile != "" {
		saved, err := config.SaveProfile(opts.saveProfile, cfg)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "💾 Профиль '%s' сохранён: %s\n", opts.saveProfile, saved)
	}

	return cfg, nil
}

// applyFlags переносит в конфигурацию явно указанные флаги.
func applyFlags(cmd *cobra.Command, o *options, cfg *config.Config) error {
	changed := cmd.Flags().Changed

	// Профиль сбрасывает каталог вариантов, поэтому идёт первым
	if changed("profile") && !cfg.ApplyProfile(o.profile) {
		return fmt.Errorf("неизвестный профиль: %s (доступны: %s)", o.profile, strings.Join(config.ValidProfiles(), ", "))
	}

	img := &cfg.Spec.Image
	vid := &cfg.Spec.Video

	if changed("root") {
		cfg.ProjectRoot = o.root
	}
	if changed("images") {
		cfg.ImagesDir = o.images
	}
	if changed("videos") {
		cfg.VideosDir = o.videos
	}
	if o.skipImages {
		cfg.RunImages = false
	}
	if o.skipVideos {
		cfg.RunVideos = false
	}

	if changed("quality") {
		img.Quality = o.quality
	}
	if changed("png-quality") {
		img.PNGQuality = o.pngQuality
	}
	if changed("widths") {
		img.Widths = o.widths
	}
	if o.noWebP {
		img.WebP = false
		img.ResponsiveWebP = false
	}
	if o.noOptimizeOriginal {
		img.OptimizeOriginal = false
	}

	if changed("crf") {
		vid.CRF = o.crf
	}
	if changed("preset") {
		vid.Preset = o.preset
	}
	if changed("max-bitrate") {
		b, err := config.ParseBitrate(o.maxBitrate)
		if err != nil {
			return fmt.Errorf("--max-bitrate: %w", err)
		}
		vid.MaxBitrate = b
	}
	if o.noTiers {
		vid.Tiers = nil
	}
	if o.noPoster {
		vid.Poster = false
	}
	if changed("extra-args") {
		vid.ExtraArgs = o.extraArgs
	}

	if changed("workers") {
		cfg.Workers = o.workers
	}
	if changed("video-workers") {
		cfg.VideoWorkers = o.videoWorkers
	}
	if changed("min-free-disk") {
		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(o.minFreeDisk)); err != nil {
			return fmt.Errorf("--min-free-disk: %w", err)
		}
		cfg.MinFreeDisk = size
	}
	if changed("image-timeout") {
		cfg.ImageTimeout = o.imageTimeout
	}
	if changed("video-timeout") {
		cfg.VideoTimeout = o.videoTimeout
	}

	if changed("db") {
		cfg.DBPath = o.dbPath
	}
	if o.noJournal {
		cfg.NoJournal = true
	}
	if changed("vips-path") {
		cfg.VipsPath = o.vipsPath
	}
	if changed("ffmpeg-path") {
		cfg.FFmpegPath = o.ffmpegPath
	}
	if changed("ffprobe-path") {
		cfg.FFprobePath = o.ffprobePath
	}

	if changed("manifest-listing") {
		cfg.ManifestListing = config.ManifestListing(o.listing)
	}
	if o.outcomes {
		cfg.ManifestOutcomes = true
	}

	if o.dryRun {
		cfg.DryRun = true
	}
	if o.verbose {
		cfg.Verbose = true
	}
	if o.jsonLogs {
		cfg.JSONLogs = true
	}
	if o.noProgress {
		cfg.NoProgress = true
	}
	if o.watch {
		cfg.Watch = true
	}

	return nil
}

// runMedia выполняет пайплайны изображений и видео.
// Ошибка пайплайна не мешает запуску второго; итоговая ошибка возвращается в конце.
func runMedia(ctx context.Context, out io.Writer, cfg *config.Config, opts *options) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Обработка сигналов завершения
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.New(logging.Options{Verbose: cfg.Verbose, JSON: cfg.JSONLogs})
	defer func() { _ = logger.Sync() }()

	journal := openJournal(cfg, logger)
	if journal != nil {
		defer func() { _ = journal.Close() }()
	}

	printBanner(out, cfg)

	deps := pipeline.Deps{Logger: logger}
	if journal != nil {
		deps.Journal = journal
	}

	var (
		kinds   []media.Kind
		results []*pipeline.Result
		errs    []error
	)
	if cfg.RunImages {
		kinds = append(kinds, media.KindImage)
	}
	if cfg.RunVideos {
		kinds = append(kinds, media.KindVideo)
	}

	var healthy []media.Kind
	for _, kind := range kinds {
		res, err := pipeline.New(cfg, kind, deps).Run(ctx)
		if err != nil {
			fmt.Fprintf(out, "❌ %s: %v\n", kindTitle(kind), err)
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			continue
		}
		healthy = append(healthy, kind)
		results = append(results, res)
		printResult(out, cfg, res)
	}

	if len(results) > 1 {
		printTotals(out, results)
	}

	if ctx.Err() != nil {
		fmt.Fprintln(out, "\n⚠️  Получен сигнал завершения, обработка остановлена")
		return errors.Join(errs...)
	}

	if cfg.Watch && !cfg.DryRun && len(healthy) > 0 {
		if err := watchAndRun(ctx, out, cfg, deps, healthy, results); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// openJournal открывает журнал; при ошибке работа продолжается без него.
func openJournal(cfg *config.Config, logger *zap.Logger) *storage.Storage {
	if cfg.NoJournal {
		return nil
	}

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		logger.Warn("журнал недоступен, запуск без него", zap.String("path", cfg.DBPath), zap.Error(err))
		return nil
	}

	// Очищаем прерванные запуски
	if n, err := store.MarkInterrupted(); err != nil {
		logger.Warn("не удалось отметить прерванные запуски", zap.Error(err))
	} else if n > 0 {
		logger.Info("отмечены прерванные запуски", zap.Int64("count", n))
	}

	return store
}

func kindTitle(kind media.Kind) string {
	if kind == media.KindVideo {
		return "Видео"
	}
	return "Изображения"
}

// printBanner выводит параметры запуска.
func printBanner(out io.Writer, cfg *config.Config) {
	l := cfg.Layout()
	fmt.Fprintf(out, "🚀 Запуск оптимизации (профиль: %s):\n", cfg.Profile)
	if cfg.RunImages {
		fmt.Fprintf(out, "   Изображения: %s (качество: %d, ширины: %v, воркеров: %d)\n",
			l.ImagesDir, cfg.Spec.Image.Quality, cfg.Spec.Image.Widths, cfg.Workers)
	}
	if cfg.RunVideos {
		fmt.Fprintf(out, "   Видео: %s (CRF: %d, битрейт: %s, воркеров: %d)\n",
			l.VideosDir, cfg.Spec.Video.CRF, cfg.Spec.Video.MaxBitrate, cfg.VideoWorkers)
	}
	if cfg.DryRun {
		fmt.Fprintln(out, "   ⚠️  Dry-run режим (без запуска инструментов)")
	}
	fmt.Fprintln(out)
}

// printResult выводит итог одного пайплайна.
func printResult(out io.Writer, cfg *config.Config, res *pipeline.Result) {
	if cfg.DryRun {
		for _, argv := range res.Commands() {
			fmt.Fprintf(out, "🔄 [dry-run] %s\n", quoteArgs(argv))
		}
	}

	s := res.Stats
	fmt.Fprintf(out, "📊 %s:\n", kindTitle(res.Kind))
	fmt.Fprintf(out, "   Исходников: %d\n", s.Assets)
	fmt.Fprintf(out, "   Задач успешно: %d\n", s.Succeeded)
	fmt.Fprintf(out, "   Ошибок: %d\n", s.Failed)
	fmt.Fprintf(out, "   Пропущено: %d\n", s.Skipped)
	if s.OutputBytes > 0 {
		fmt.Fprintf(out, "   Создано: %s из %s исходников\n", worker.FormatBytes(s.OutputBytes), worker.FormatBytes(s.InputBytes))
	}
	if res.ManifestPath != "" {
		fmt.Fprintf(out, "   Отчёт: %s\n", res.ManifestPath)
	}
	fmt.Fprintf(out, "   Время: %s\n\n", res.Duration.Round(time.Millisecond))

	for _, r := range res.Reports {
		if failed := r.FailedVariants(); len(failed) > 0 && r.Count(media.StatusFailed) > 0 {
			fmt.Fprintf(out, "   ❌ %s: %s\n", r.Asset.Name, strings.Join(failed, ", "))
		}
	}
}

func printTotals(out io.Writer, results []*pipeline.Result) {
	var total worker.Stats
	for _, r := range results {
		total = total.Add(r.Stats)
	}
	fmt.Fprintf(out, "📦 Всего: %d исходников, %d задач, ошибок: %d\n", total.Assets, total.Tasks(), total.Failed)
}

// quoteArgs склеивает argv для вывода, беря в кавычки аргументы с пробелами.
func quoteArgs(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = strconv.Quote(a)
		}
		parts[i] = a
	}
	return strings.Join(parts, " ")
}

// newVersionCmd создаёт команду version.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mediaopt %s (built %s)\n", Version, BuildTime)
		},
	}
}

// newStatsCmd создаёт команду stats.
func newStatsCmd() *cobra.Command {
	var (
		root  string
		db    string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Показать статистику из журнала запусков",
		RunE: func(cmd *cobra.Command, args []string) error {
			if db == "" {
				cfg := config.DefaultConfig()
				cfg.ProjectRoot = root
				if err := cfg.Validate(); err != nil {
					return err
				}
				db = cfg.DBPath
			}
			if _, err := os.Stat(db); err != nil {
				return fmt.Errorf("журнал не найден: %s", db)
			}

			store, err := storage.New(db)
			if err != nil {
				return fmt.Errorf("не удалось открыть БД: %w", err)
			}
			defer func() { _ = store.Close() }()

			return printStats(cmd.OutOrStdout(), store, limit)
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "Корень проекта")
	cmd.Flags().StringVar(&db, "db", "", "Путь к SQLite журналу")
	cmd.Flags().IntVar(&limit, "limit", 10, "Сколько последних запусков показать")

	return cmd
}

// printStats выводит сводку и последние запуски.
func printStats(out io.Writer, store *storage.Storage, limit int) error {
	totals, err := store.GetTotals()
	if err != nil {
		return fmt.Errorf("не удалось получить статистику: %w", err)
	}

	fmt.Fprintf(out, "📊 Статистика журнала:\n")
	fmt.Fprintf(out, "   Запусков: %d\n", totals.Runs)
	fmt.Fprintf(out, "   Задач успешно: %d\n", totals.Succeeded)
	fmt.Fprintf(out, "   Ошибок: %d\n", totals.Failed)
	fmt.Fprintf(out, "   Пропущено: %d\n", totals.Skipped)
	fmt.Fprintf(out, "   Создано: %s\n", worker.FormatBytes(totals.OutputBytes))

	runs, err := store.RecentRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return nil
	}

	fmt.Fprintf(out, "\n🕑 Последние запуски:\n")
	for _, r := range runs {
		mark := ""
		if r.DryRun {
			mark = " [dry-run]"
		}
		fmt.Fprintf(out, "   %s  %-5s  %-11s  исходников: %d, ошибок: %d, время: %s%s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.Kind, r.Status,
			r.Assets, r.Failed, r.Duration().Round(time.Millisecond), mark)
		if r.Error != "" {
			fmt.Fprintf(out, "      %s\n", r.Error)
		}
	}

	return nil
}

// Execute запускает CLI.
func Execute() {
	// .env с путями к инструментам; отсутствие файла не ошибка
	_ = godotenv.Load()

	if err := NewRootCmd().Execute(); err != nil {
		// Не выводим ошибку, cobra уже вывела
		os.Exit(1)
	}
}

/*
Возможные расширения:
- Команда clean для удаления производных файлов
- Команда retry для повторной обработки упавших вариантов из журнала
- Экспорт статистики в JSON
*/
