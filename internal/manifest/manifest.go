// Package manifest пишет markdown-отчёты о запуске: RESPONSIVE_IMAGES.md и VIDEO_OPTIMIZATION.md.
//
// Отчёт перегенерируется целиком при каждом запуске и никогда не дополняется.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/artemshloyda/mediaopt/internal/config"
	"github.com/artemshloyda/mediaopt/internal/media"
)

// TimeFormat - ISO-8601 в UTC с миллисекундами.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// RunManifest - данные одного отчёта.
type RunManifest struct {
	// Kind - тип медиа.
	Kind media.Kind

	// Assets - отчёты по исходникам в порядке обнаружения.
	Assets []media.AssetReport

	// Spec - каталог вариантов запуска.
	Spec config.VariantSpec

	// Layout - директории запуска.
	Layout config.Layout

	// Listing - какие исходники попадают в список.
	Listing config.ManifestListing

	// IncludeOutcomes - добавить раздел с результатами задач.
	IncludeOutcomes bool

	// GeneratedAt - время генерации (если нулевое, берётся из часов генератора).
	GeneratedAt time.Time
}

// Listed возвращает имена исходников для списка с учётом режима.
func (m RunManifest) Listed() []string {
	names := make([]string, 0, len(m.Assets))
	for _, r := range m.Assets {
		if m.Listing == config.ListingSucceeded && !r.AllSucceeded() {
			continue
		}
		names = append(names, r.Asset.Name)
	}
	return names
}

// Generator рендерит и записывает отчёт.
type Generator struct {
	// Path - путь файла отчёта.
	Path string

	// Root - корень проекта, относительно него печатаются директории.
	Root string

	// Now - часы. Подменяются в тестах.
	Now func() time.Time
}

// New создаёт генератор отчёта.
func New(path, root string) *Generator {
	return &Generator{Path: path, Root: root, Now: time.Now}
}

// Render возвращает содержимое отчёта.
func (g *Generator) Render(m RunManifest) ([]byte, error) {
	if m.GeneratedAt.IsZero() {
		m.GeneratedAt = g.Now()
	}

	var tmpl *template.Template
	switch m.Kind {
	case media.KindImage:
		tmpl = imageTemplate
	case media.KindVideo:
		tmpl = videoTemplate
	default:
		return nil, fmt.Errorf("неизвестный тип отчёта: %s", m.Kind)
	}

	data := view{
		RunManifest: m,
		Files:       m.Listed(),
		Generated:   m.GeneratedAt.UTC().Format(TimeFormat),
		Example:     exampleName(m),
		ExampleExt:  exampleExt(m),
		VariantExt:  strings.ToLower(exampleExt(m)),
		Widths:      m.Spec.Image.VariantWidths(),
		BufSize:     m.Spec.Video.BufSize(m.Spec.Video.MaxBitrate),
		Images:      g.rel(m.Layout.ImagesDir),
		WebPDir:     g.rel(m.Layout.WebPDir),
		Responsive:  g.rel(m.Layout.ResponsiveDir),
		Videos:      g.rel(m.Layout.VideosDir),
		Optimized:   g.rel(m.Layout.OptimizedDir),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("ошибка рендеринга отчёта: %w", err)
	}
	return buf.Bytes(), nil
}

// Write рендерит отчёт и атомарно заменяет файл.
func (g *Generator) Write(m RunManifest) error {
	data, err := g.Render(m)
	if err != nil {
		return err
	}
	return writeAtomic(g.Path, data)
}

// view - данные шаблона.
type view struct {
	RunManifest
	Files      []string
	Generated  string
	Example    string
	ExampleExt string
	VariantExt string
	Widths     []int
	BufSize    config.Bitrate
	Images     string
	WebPDir    string
	Responsive string
	Videos     string
	Optimized  string
}

// rel печатает директорию относительно корня, через прямые слэши.
func (g *Generator) rel(dir string) string {
	if dir == "" {
		return ""
	}
	if g.Root != "" {
		if root, err := filepath.Abs(g.Root); err == nil {
			if r, err := filepath.Rel(root, dir); err == nil && !strings.HasPrefix(r, "..") {
				dir = r
			}
		}
	}
	return "/" + strings.TrimPrefix(filepath.ToSlash(dir), "/")
}

// exampleName - базовое имя для примеров использования.
func exampleName(m RunManifest) string {
	if len(m.Assets) > 0 {
		return m.Assets[0].Asset.BaseName
	}
	if m.Kind == media.KindVideo {
		return "hero-bg"
	}
	return "hero-img"
}

func exampleExt(m RunManifest) string {
	if len(m.Assets) > 0 {
		return m.Assets[0].Asset.Ext
	}
	return ".png"
}

// writeAtomic пишет во временный файл в той же директории и переименовывает.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("не удалось создать временный файл: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("не удалось записать отчёт: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("не удалось записать отчёт: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("не удалось заменить %s: %w", path, err)
	}
	return nil
}
