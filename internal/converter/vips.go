package converter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/artemshloyda/mediaopt/internal/media"
	"github.com/artemshloyda/mediaopt/internal/probe"
)

// unboundedHeight - высота, которая никогда не ограничивает thumbnail.
const unboundedHeight = 100000

// vipsArgs строит команду vips для задачи над изображением.
//
// Оптимизация и конвертация формата идут через "vips copy",
// адаптивные варианты - через "vips thumbnail" с --size=down.
// thumbnail вписывает картинку в квадрат width×width, поэтому высота
// задаётся заведомо большой: ограничивает только ширина.
// Формат результата vips определяет по расширению output.
func vipsArgs(vipsPath string, task media.DerivationTask, dims *probe.Info, output string) ([]string, error) {
	out := output + vipsSaveOptions(task.Params)

	switch task.Kind {
	case media.TaskOptimizeOriginal, media.TaskFormatConvert:
		return []string{vipsPath, "copy", task.Asset.Path, out}, nil

	case media.TaskResizeVariant:
		if task.Params.Width <= 0 {
			return nil, fmt.Errorf("не задана ширина варианта %s", task.Variant)
		}
		width := task.Params.Width
		if dims != nil {
			width = TargetWidth(dims.Width, task.Params.Width)
		}
		return []string{
			vipsPath, "thumbnail", task.Asset.Path, out,
			strconv.Itoa(width),
			"--height=" + strconv.Itoa(unboundedHeight),
			"--size=down",
		}, nil
	}

	return nil, fmt.Errorf("vips не поддерживает задачу %s", task.Kind)
}

// vipsSaveOptions возвращает суффикс параметров сохранения.
// Например: [Q=85,optimize_coding,strip] для jpg.
func vipsSaveOptions(p media.TaskParams) string {
	var opts []string

	switch p.Format {
	case "jpg", "jpeg":
		if p.Quality > 0 {
			opts = append(opts, fmt.Sprintf("Q=%d", p.Quality))
		}
		opts = append(opts, "optimize_coding")
	case "webp":
		if p.Quality > 0 {
			opts = append(opts, fmt.Sprintf("Q=%d", p.Quality))
		}
	case "png":
		opts = append(opts, "compression=9")
		if p.PNGQuality > 0 {
			opts = append(opts, "palette", fmt.Sprintf("Q=%d", p.PNGQuality))
		}
	}

	if p.StripMetadata {
		opts = append(opts, "strip")
	}

	if len(opts) == 0 {
		return ""
	}
	return "[" + strings.Join(opts, ",") + "]"
}
