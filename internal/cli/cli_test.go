package cli

import (
	"bytes"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artemshloyda/mediaopt/internal/config"
	"github.com/artemshloyda/mediaopt/internal/media"
	"github.com/artemshloyda/mediaopt/internal/storage"
)

// isolate убирает влияние пользовательских файлов конфигурации.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("MEDIAOPT_PROFILES_DIR", filepath.Join(dir, "profiles"))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func parse(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	cmd, opts := newRootCmd()
	cmd.SetErr(&bytes.Buffer{})
	require.NoError(t, cmd.ParseFlags(args))
	return buildConfig(cmd, opts)
}

func TestBuildConfig_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := parse(t)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultVariantSpec(), cfg.Spec)
	assert.True(t, cfg.RunImages)
	assert.True(t, cfg.RunVideos)
	assert.Equal(t, filepath.Join(".", config.ImageManifestName), cfg.ImageManifestPath)
}

func TestBuildConfig_FlagsOverrideFile(t *testing.T) {
	dir := isolate(t)

	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
images:
  quality: 70
  widths: [320, 640]
processing:
  workers: 3
`), 0o644))

	cfg, err := parse(t, "--config", path, "--quality", "90", "--skip-videos")
	require.NoError(t, err)

	assert.Equal(t, 90, cfg.Spec.Image.Quality)
	assert.Equal(t, []int{320, 640}, cfg.Spec.Image.Widths)
	assert.Equal(t, 3, cfg.Workers)
	assert.False(t, cfg.RunVideos)
}

func TestBuildConfig_Profile(t *testing.T) {
	isolate(t)

	cfg, err := parse(t, "--profile", "mobile", "--crf", "26")
	require.NoError(t, err)

	assert.Equal(t, []int{400, 800}, cfg.Spec.Image.Widths)
	assert.Equal(t, 26, cfg.Spec.Video.CRF)
	assert.Equal(t, "mobile", cfg.Profile)
}

func TestBuildConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown profile", []string{"--profile", "ultra"}},
		{"bad bitrate", []string{"--max-bitrate", "fast"}},
		{"bad disk size", []string{"--min-free-disk", "lots"}},
		{"bad listing", []string{"--manifest-listing", "some"}},
		{"invalid quality", []string{"--quality", "0"}},
		{"both skipped", []string{"--skip-images", "--skip-videos"}},
		{"missing config", []string{"--config", "nope.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			_, err := parse(t, tt.args...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, config.ErrInvalidConfig), "error = %v", err)
		})
	}
}

func TestBuildConfig_MinFreeDiskAndTimeouts(t *testing.T) {
	isolate(t)

	cfg, err := parse(t, "--min-free-disk", "2GB", "--video-timeout", "10m", "--no-tiers", "--no-webp")
	require.NoError(t, err)

	assert.Equal(t, 2*datasize.GB, cfg.MinFreeDisk)
	assert.Equal(t, "10m0s", cfg.VideoTimeout.String())
	assert.Empty(t, cfg.Spec.Video.Tiers)
	assert.False(t, cfg.Spec.Image.WebP)
	assert.False(t, cfg.Spec.Image.ResponsiveWebP)
}

func TestBuildConfig_SaveAndLoadProfile(t *testing.T) {
	isolate(t)

	_, err := parse(t, "--widths", "480,960", "--crf", "24", "--save-profile", "landing")
	require.NoError(t, err)

	cfg, err := parse(t, "--load-profile", "landing")
	require.NoError(t, err)
	assert.Equal(t, []int{480, 960}, cfg.Spec.Image.Widths)
	assert.Equal(t, 24, cfg.Spec.Video.CRF)

	_, err = parse(t, "--load-profile", "missing")
	assert.Error(t, err)
}

func TestQuoteArgs(t *testing.T) {
	got := quoteArgs([]string{"ffmpeg", "-vf", "scale='min(1920,iw)':-2", "-metadata", "title=My Clip"})
	assert.Equal(t, `ffmpeg -vf "scale='min(1920,iw)':-2" -metadata "title=My Clip"`, got)
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "mediaopt dev")
}

func TestConfigInit(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "mediaopt.yaml")

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "init", path})
	require.NoError(t, cmd.Execute())
	assert.FileExists(t, path)

	cmd = NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "init", path})
	assert.Error(t, cmd.Execute())

	// Созданный файл подхватывается автоматически
	cfg, err := parse(t)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultVariantSpec().Image.Quality, cfg.Spec.Image.Quality)
}

func TestStatsCmd(t *testing.T) {
	dir := isolate(t)
	db := filepath.Join(dir, "state.sqlite")

	st, err := storage.New(db)
	require.NoError(t, err)
	id, err := st.StartRun(media.KindImage, "hash", false)
	require.NoError(t, err)
	require.NoError(t, st.FinishRun(id, storage.RunCompleted, storage.RunTotals{Assets: 2}, nil))
	require.NoError(t, st.Close())

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"stats", "--db", db})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Запусков: 1")
	assert.Contains(t, out.String(), "completed")
}

func TestStatsCmd_MissingJournal(t *testing.T) {
	dir := isolate(t)

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"stats", "--db", filepath.Join(dir, "none.sqlite")})
	assert.Error(t, cmd.Execute())
}

func TestProfilesCommands(t *testing.T) {
	isolate(t)

	_, err := parse(t, "--quality", "77", "--save-profile", "blog")
	require.NoError(t, err)

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		cmd := NewRootCmd()
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(args)
		err := cmd.Execute()
		return out.String(), err
	}

	out, err := run("profiles", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "blog")
	assert.Contains(t, out, "77")

	out, err = run("profiles", "show", "blog")
	require.NoError(t, err)
	assert.Contains(t, out, "quality: 77")

	_, err = run("profiles", "delete", "blog")
	require.NoError(t, err)

	_, err = run("profiles", "delete", "blog")
	assert.Error(t, err)
}

func TestRootCmd_DryRun(t *testing.T) {
	dir := isolate(t)
	images := filepath.Join(dir, "public", "images")
	require.NoError(t, os.MkdirAll(images, 0o755))
	img := imaging.New(640, 480, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	require.NoError(t, imaging.Save(img, filepath.Join(images, "dog.png")))

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--root", dir, "--skip-videos", "--dry-run", "--no-journal", "--vips-path", "/nonexistent/vips"})
	require.NoError(t, cmd.Execute())

	text := out.String()
	assert.Contains(t, text, "[dry-run]")
	assert.Contains(t, text, "thumbnail")
	assert.Equal(t, 10, strings.Count(text, "[dry-run] "))
	assert.NoFileExists(t, filepath.Join(dir, config.ImageManifestName))
	assert.NoDirExists(t, filepath.Join(images, "webp"))
}

func TestRootCmd_MissingInputDirFails(t *testing.T) {
	dir := isolate(t)

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--root", dir, "--skip-videos", "--dry-run", "--no-journal"})
	assert.Error(t, cmd.Execute())
}
