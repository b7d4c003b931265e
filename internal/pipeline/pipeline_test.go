package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/artemshloyda/mediaopt/internal/config"
	"github.com/artemshloyda/mediaopt/internal/converter"
	"github.com/artemshloyda/mediaopt/internal/media"
	"github.com/artemshloyda/mediaopt/internal/probe"
	"github.com/artemshloyda/mediaopt/internal/storage"
	"github.com/artemshloyda/mediaopt/internal/toolfinder"
)

// fakeRunner имитирует vips и ffmpeg: пишет результат в путь из argv.
// "vips copy" копирует исходник, чтобы результат оставался валидным изображением.
type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	failOn string
	delay  time.Duration
}

func (f *fakeRunner) Run(_ context.Context, argv []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, argv)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	out := outputOf(argv)
	if f.failOn != "" && strings.Contains(targetName(out), f.failOn) {
		return &converter.ExecError{Argv: argv, ExitCode: 1, Stderr: "simulated failure", Err: errors.New("exit status 1")}
	}

	if len(argv) > 2 && argv[1] == "copy" {
		data, err := os.ReadFile(argv[2])
		if err != nil {
			return err
		}
		return os.WriteFile(out, data, 0o644)
	}
	return os.WriteFile(out, []byte("output of "+filepath.Base(argv[0])), 0o644)
}

func (f *fakeRunner) commands() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

// outputOf находит временный путь результата в argv.
func outputOf(argv []string) string {
	for _, a := range argv[1:] {
		clean := a
		if i := strings.IndexByte(clean, '['); i >= 0 {
			clean = clean[:i]
		}
		if strings.Contains(filepath.Base(clean), ".part") {
			return clean
		}
	}
	return argv[len(argv)-1]
}

// targetName восстанавливает имя цели по временному пути:
// .dog.1f3a9c2e.part.webp -> dog.webp.
func targetName(tmp string) string {
	name := filepath.Base(tmp)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(strings.TrimSuffix(name, ext), ".part")
	if i := strings.LastIndexByte(stem, '.'); i > 0 {
		stem = stem[:i]
	}
	return strings.TrimPrefix(stem, ".") + ext
}

type fakeProber struct {
	info *probe.Info
	err  error
}

func (f fakeProber) Probe(context.Context, media.SourceAsset) (*probe.Info, error) {
	return f.info, f.err
}

func foundTools(context.Context, media.Kind) (*Tools, error) {
	return &Tools{
		Vips:    &toolfinder.ToolInfo{Name: "vips", Path: "/opt/bin/vips"},
		FFmpeg:  &toolfinder.ToolInfo{Name: "ffmpeg", Path: "/opt/bin/ffmpeg"},
		FFprobe: &toolfinder.ToolInfo{Name: "ffprobe", Path: "/opt/bin/ffprobe"},
	}, nil
}

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ProjectRoot = t.TempDir()
	cfg.Workers = 2
	cfg.NoProgress = true
	require.NoError(t, cfg.Validate())

	l := cfg.Layout()
	require.NoError(t, os.MkdirAll(l.ImagesDir, 0o755))
	require.NoError(t, os.MkdirAll(l.VideosDir, 0o755))
	return cfg
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 120, B: 40, A: 255})
	require.NoError(t, imaging.Save(img, path))
}

func newPipeline(t *testing.T, cfg *config.Config, kind media.Kind, deps Deps) *Pipeline {
	if deps.Locate == nil {
		deps.Locate = foundTools
	}
	deps.Logger = zaptest.NewLogger(t)
	deps.Out = &bytes.Buffer{}
	deps.Now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	return New(cfg, kind, deps)
}

func readManifest(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// Сценарий A: dog.png даёт webp, адаптивные варианты и строку в отчёте.
func TestRun_ImageScenario(t *testing.T) {
	cfg := newConfig(t)
	l := cfg.Layout()
	writePNG(t, filepath.Join(l.ImagesDir, "dog.png"), 1000, 600)

	runner := &fakeRunner{}
	res, err := newPipeline(t, cfg, media.KindImage, Deps{Runner: runner}).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Reports, 1)
	assert.True(t, res.Reports[0].AllSucceeded(), "failed: %v", res.Reports[0].FailedVariants())

	expected := []string{
		filepath.Join(l.WebPDir, "dog.webp"),
		filepath.Join(l.ResponsiveDir, "dog-400w.png"),
		filepath.Join(l.ResponsiveDir, "dog-400w.webp"),
		filepath.Join(l.ResponsiveDir, "dog-800w.png"),
		filepath.Join(l.ResponsiveDir, "dog-800w.webp"),
		filepath.Join(l.ResponsiveDir, "dog-1200w.png"),
		filepath.Join(l.ResponsiveDir, "dog-1200w.webp"),
		filepath.Join(l.ResponsiveDir, "dog-1600w.png"),
		filepath.Join(l.ResponsiveDir, "dog-1600w.webp"),
	}
	for _, path := range expected {
		assert.FileExists(t, path)
	}

	// Варианты шире исходника не увеличивают его
	for _, argv := range runner.commands() {
		if argv[1] != "thumbnail" {
			continue
		}
		assert.Contains(t, []string{"400", "800", "1000"}, argv[4], "argv: %v", argv)
	}

	assert.Equal(t, cfg.ImageManifestPath, res.ManifestPath)
	doc := readManifest(t, res.ManifestPath)
	assert.Contains(t, doc, "## Image Files Processed\n\n- dog.png\n")
	assert.Contains(t, doc, "Generated on: 2026-03-01T10:00:00.000Z")

	assert.Equal(t, int64(1), res.Stats.Assets)
	assert.Equal(t, int64(10), res.Stats.Succeeded)
}

// Сценарий B: 4K исходник уменьшается до потолка, создаются все ступени и постер.
func TestRun_VideoScenario(t *testing.T) {
	cfg := newConfig(t)
	l := cfg.Layout()
	require.NoError(t, os.WriteFile(filepath.Join(l.VideosDir, "clip.mp4"), []byte("video"), 0o644))

	runner := &fakeRunner{}
	prober := fakeProber{info: &probe.Info{Width: 3840, Height: 2160, Duration: 20 * time.Second}}
	res, err := newPipeline(t, cfg, media.KindVideo, Deps{Runner: runner, Prober: prober}).Run(context.Background())
	require.NoError(t, err)

	for _, name := range []string{"clip-optimized.mp4", "clip-low.mp4", "clip-medium.mp4", "clip-high.mp4"} {
		assert.FileExists(t, filepath.Join(l.OptimizedDir, name))
	}
	assert.FileExists(t, filepath.Join(l.VideosDir, "clip-poster.jpg"))

	primary := runner.commands()[0]
	assert.Equal(t, "/opt/bin/ffmpeg", primary[0])
	assert.Contains(t, strings.Join(primary, " "), "-vf scale=1920:1080")
	assert.Contains(t, strings.Join(primary, " "), "-maxrate 2M -bufsize 4M")

	doc := readManifest(t, res.ManifestPath)
	assert.Contains(t, doc, "- clip.mp4\n")

	// Результаты пайплайна не подхватываются повторным поиском
	res2, err := newPipeline(t, cfg, media.KindVideo, Deps{Runner: &fakeRunner{}, Prober: prober}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res2.Reports, 1)
	assert.Equal(t, "clip.mp4", res2.Reports[0].Asset.Name)
}

// Сценарий C: без ffmpeg видео-пайплайн останавливается, изображения обрабатываются.
func TestRun_MissingVideoToolAbortsOnlyVideo(t *testing.T) {
	cfg := newConfig(t)
	l := cfg.Layout()
	clip := filepath.Join(l.VideosDir, "clip.mp4")
	require.NoError(t, os.WriteFile(clip, []byte("video"), 0o644))
	writePNG(t, filepath.Join(l.ImagesDir, "dog.png"), 500, 300)

	locate := func(ctx context.Context, kind media.Kind) (*Tools, error) {
		if kind == media.KindVideo {
			return nil, fmt.Errorf("%w: ffmpeg", toolfinder.ErrToolNotFound)
		}
		return foundTools(ctx, kind)
	}

	videoRunner := &fakeRunner{}
	_, err := newPipeline(t, cfg, media.KindVideo, Deps{Locate: locate, Runner: videoRunner}).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.ErrorIs(t, err, toolfinder.ErrToolNotFound)

	assert.Empty(t, videoRunner.commands())
	assert.NoDirExists(t, l.OptimizedDir)
	assert.NoFileExists(t, cfg.VideoManifestPath)
	data, err := os.ReadFile(clip)
	require.NoError(t, err)
	assert.Equal(t, "video", string(data))

	res, err := newPipeline(t, cfg, media.KindImage, Deps{Locate: locate, Runner: &fakeRunner{}}).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Reports[0].AllSucceeded())
}

// Сценарий D: упавшая ступень не мешает остальным задачам исходника.
func TestRun_TierFailureKeepsSiblings(t *testing.T) {
	cfg := newConfig(t)
	l := cfg.Layout()
	require.NoError(t, os.WriteFile(filepath.Join(l.VideosDir, "clip.mp4"), []byte("video"), 0o644))

	runner := &fakeRunner{failOn: "-medium"}
	prober := fakeProber{info: &probe.Info{Width: 1920, Height: 1080, Duration: 5 * time.Second}}
	res, err := newPipeline(t, cfg, media.KindVideo, Deps{Runner: runner, Prober: prober}).Run(context.Background())
	require.NoError(t, err)

	r := res.Reports[0]
	assert.Equal(t, []string{"medium"}, r.FailedVariants())
	assert.Equal(t, 4, r.Count(media.StatusSucceeded))
	assert.FileExists(t, filepath.Join(l.OptimizedDir, "clip-high.mp4"))
	assert.FileExists(t, filepath.Join(l.VideosDir, "clip-poster.jpg"))
	assert.NoFileExists(t, filepath.Join(l.OptimizedDir, "clip-medium.mp4"))
	assertNoTemps(t, l.OptimizedDir)

	doc := readManifest(t, res.ManifestPath)
	assert.Equal(t, 1, strings.Count(doc, "- clip.mp4\n"))
}

func TestRun_ImageRerunIsIdempotent(t *testing.T) {
	cfg := newConfig(t)
	l := cfg.Layout()
	writePNG(t, filepath.Join(l.ImagesDir, "dog.png"), 900, 900)
	writePNG(t, filepath.Join(l.ImagesDir, "cat.png"), 300, 300)

	for i := 0; i < 2; i++ {
		res, err := newPipeline(t, cfg, media.KindImage, Deps{Runner: &fakeRunner{}}).Run(context.Background())
		require.NoError(t, err)

		var names []string
		for _, r := range res.Reports {
			names = append(names, r.Asset.Name)
		}
		assert.Equal(t, []string{"cat.png", "dog.png"}, names, "run %d", i+1)
	}

	// Временных файлов не остаётся
	assertNoTemps(t, l.ImagesDir)
	assertNoTemps(t, l.WebPDir)
	assertNoTemps(t, l.ResponsiveDir)
}

func TestRun_SameBaseNameAssetsDoNotCollide(t *testing.T) {
	cfg := newConfig(t)
	cfg.Workers = 2
	l := cfg.Layout()
	writePNG(t, filepath.Join(l.ImagesDir, "dog.png"), 600, 400)
	writePNG(t, filepath.Join(l.ImagesDir, "dog.jpg"), 600, 400)

	runner := &fakeRunner{delay: 5 * time.Millisecond}
	res, err := newPipeline(t, cfg, media.KindImage, Deps{Runner: runner}).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Reports, 2)
	for _, r := range res.Reports {
		assert.True(t, r.AllSucceeded(), "%s: %v", r.Asset.Name, r.FailedVariants())
	}
	assert.Equal(t, int64(0), res.Stats.Failed)
	assert.FileExists(t, filepath.Join(l.WebPDir, "dog.webp"))
	assert.FileExists(t, filepath.Join(l.ResponsiveDir, "dog-400w.jpg"))
	assert.FileExists(t, filepath.Join(l.ResponsiveDir, "dog-400w.png"))
	assertNoTemps(t, l.WebPDir)
	assertNoTemps(t, l.ResponsiveDir)
}

// assertNoTemps проверяет, что в директории не осталось временных файлов.
func assertNoTemps(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".part"), e.Name())
	}
}

func TestRun_MissingInputDir(t *testing.T) {
	cfg := newConfig(t)
	require.NoError(t, os.RemoveAll(cfg.Layout().VideosDir))

	_, err := newPipeline(t, cfg, media.KindVideo, Deps{Runner: &fakeRunner{}}).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.NoDirExists(t, cfg.Layout().OptimizedDir)
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	cfg := newConfig(t)
	cfg.DryRun = true
	l := cfg.Layout()
	src := filepath.Join(l.ImagesDir, "dog.png")
	writePNG(t, src, 1000, 600)
	before, err := os.ReadFile(src)
	require.NoError(t, err)

	runner := &fakeRunner{}
	res, err := newPipeline(t, cfg, media.KindImage, Deps{Runner: runner}).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, runner.commands())
	assert.NoDirExists(t, l.WebPDir)
	assert.NoDirExists(t, l.ResponsiveDir)
	assert.NoFileExists(t, cfg.ImageManifestPath)
	assert.Empty(t, res.ManifestPath)

	after, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	cmds := res.Commands()
	require.Len(t, cmds, 10)
	assert.Equal(t, []string{"/opt/bin/vips", "copy", src, src + "[compression=9,palette,Q=80,strip]"}, cmds[0])
	for _, r := range res.Reports {
		for _, o := range r.Outcomes {
			assert.ErrorIs(t, o.Err, converter.ErrDryRun)
		}
	}
}

func TestRun_DryRunWithoutTools(t *testing.T) {
	cfg := newConfig(t)
	cfg.DryRun = true
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Layout().VideosDir, "clip.mp4"), []byte("video"), 0o644))

	locate := func(context.Context, media.Kind) (*Tools, error) {
		return nil, toolfinder.ErrToolNotFound
	}
	prober := fakeProber{info: &probe.Info{Width: 1280, Height: 720}}

	res, err := newPipeline(t, cfg, media.KindVideo, Deps{Locate: locate, Prober: prober}).Run(context.Background())
	require.NoError(t, err)

	cmds := res.Commands()
	require.NotEmpty(t, cmds)
	assert.Equal(t, "ffmpeg", cmds[0][0])
}

func TestRun_Journal(t *testing.T) {
	cfg := newConfig(t)
	writePNG(t, filepath.Join(cfg.Layout().ImagesDir, "dog.png"), 500, 500)

	st, err := storage.New(filepath.Join(t.TempDir(), "state.sqlite"))
	require.NoError(t, err)
	defer st.Close()

	res, err := newPipeline(t, cfg, media.KindImage, Deps{Runner: &fakeRunner{failOn: "dog.webp"}, Journal: st}).Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	run, err := st.GetRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunCompleted, run.Status)
	assert.Equal(t, int64(1), run.Assets)
	assert.Equal(t, int64(1), run.Failed)
	assert.Equal(t, cfg.SpecHash(), run.SpecHash)

	failed, err := st.FailedOutcomes(res.RunID)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.True(t, strings.HasPrefix(failed[0], "dog.png/webp: "), failed[0])
}

func TestRun_JournalRecordsAbort(t *testing.T) {
	cfg := newConfig(t)

	st, err := storage.New(filepath.Join(t.TempDir(), "state.sqlite"))
	require.NoError(t, err)
	defer st.Close()

	locate := func(context.Context, media.Kind) (*Tools, error) {
		return nil, toolfinder.ErrToolNotFound
	}

	res, err := newPipeline(t, cfg, media.KindVideo, Deps{Locate: locate, Journal: st}).Run(context.Background())
	require.Error(t, err)

	run, err := st.GetRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunAborted, run.Status)
	assert.NotEmpty(t, run.Error)
}

func TestRun_ManifestWriteFailureIsNotFatal(t *testing.T) {
	cfg := newConfig(t)
	writePNG(t, filepath.Join(cfg.Layout().ImagesDir, "dog.png"), 200, 200)

	// Родитель отчёта - обычный файл
	blocker := filepath.Join(cfg.ProjectRoot, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg.ImageManifestPath = filepath.Join(blocker, "RESPONSIVE_IMAGES.md")

	res, err := newPipeline(t, cfg, media.KindImage, Deps{Runner: &fakeRunner{}}).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.ManifestPath)
	assert.True(t, res.Reports[0].AllSucceeded())
}

func TestNew_VerboseTeesToolOutput(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantTee bool
	}{
		{"verbose", true, true},
		{"quiet", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newConfig(t)
			cfg.Verbose = tt.verbose
			out := &bytes.Buffer{}

			p := New(cfg, media.KindImage, Deps{Out: out})

			runner, ok := p.deps.Runner.(converter.ExecRunner)
			require.True(t, ok, "default runner must be ExecRunner, got %T", p.deps.Runner)
			if tt.wantTee {
				assert.Same(t, out, runner.Tee)
			} else {
				assert.Nil(t, runner.Tee)
			}
		})
	}
}
