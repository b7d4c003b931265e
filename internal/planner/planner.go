// Package planner раскладывает исходник на упорядоченный список производных задач.
//
// Планировщик не обращается к файловой системе: имена результатов и параметры
// выводятся только из исходника, каталога вариантов и раскладки директорий.
package planner

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/artemshloyda/mediaopt/internal/config"
	"github.com/artemshloyda/mediaopt/internal/media"
)

// Метки вариантов, не зависящие от каталога.
const (
	VariantOriginal  = "original"
	VariantWebP      = "webp"
	VariantOptimized = "optimized"
	VariantPoster    = "poster"
)

// Plan возвращает задачи исходника в порядке выполнения.
// Пустой каталог вариантов даёт пустой список.
func Plan(asset media.SourceAsset, spec *config.VariantSpec, layout config.Layout) []media.DerivationTask {
	switch asset.Kind {
	case media.KindImage:
		return planImage(asset, &spec.Image, layout)
	case media.KindVideo:
		return planVideo(asset, &spec.Video, layout)
	}
	return nil
}

// planImage: оптимизация на месте -> webp -> по каждой ширине исходный формат и webp.
func planImage(asset media.SourceAsset, s *config.ImageSpec, layout config.Layout) []media.DerivationTask {
	tasks := []media.DerivationTask{}
	srcFormat := formatOf(asset.Ext)

	base := media.TaskParams{
		Quality:       s.Quality,
		PNGQuality:    s.PNGQuality,
		StripMetadata: s.StripMetadata,
	}

	if s.OptimizeOriginal {
		p := base
		p.Format = srcFormat
		tasks = append(tasks, media.DerivationTask{
			Asset:   asset,
			Kind:    media.TaskOptimizeOriginal,
			Variant: VariantOriginal,
			Target:  asset.Path,
			Params:  p,
		})
	}

	if s.WebP {
		p := base
		p.Format = "webp"
		tasks = append(tasks, media.DerivationTask{
			Asset:   asset,
			Kind:    media.TaskFormatConvert,
			Variant: VariantWebP,
			Target:  filepath.Join(layout.WebPDir, asset.BaseName+".webp"),
			Params:  p,
		})
	}

	// Адаптивные варианты получают расширение в нижнем регистре: Logo.PNG -> Logo-400w.png
	respExt := strings.ToLower(asset.Ext)
	for _, w := range s.VariantWidths() {
		p := base
		p.Format = srcFormat
		p.Width = w
		tasks = append(tasks, media.DerivationTask{
			Asset:   asset,
			Kind:    media.TaskResizeVariant,
			Variant: fmt.Sprintf("%dw", w),
			Target:  filepath.Join(layout.ResponsiveDir, fmt.Sprintf("%s-%dw%s", asset.BaseName, w, respExt)),
			Params:  p,
		})

		if s.ResponsiveWebP {
			pw := p
			pw.Format = "webp"
			tasks = append(tasks, media.DerivationTask{
				Asset:   asset,
				Kind:    media.TaskResizeVariant,
				Variant: fmt.Sprintf("%dw.webp", w),
				Target:  filepath.Join(layout.ResponsiveDir, fmt.Sprintf("%s-%dw.webp", asset.BaseName, w)),
				Params:  pw,
			})
		}
	}

	return tasks
}

// planVideo: основная версия -> ступени качества -> постер.
func planVideo(asset media.SourceAsset, s *config.VideoSpec, layout config.Layout) []media.DerivationTask {
	tasks := []media.DerivationTask{}

	// Каталог уже провалидирован, ошибка здесь невозможна
	extra, _ := s.SplitExtraArgs()

	encode := media.TaskParams{
		Format:       "mp4",
		VideoCodec:   s.Codec,
		CRF:          s.CRF,
		Preset:       s.Preset,
		AudioCodec:   s.AudioCodec,
		AudioBitrate: int64(s.AudioBitrate),
		Profile:      s.Profile,
		Level:        s.Level,
		PixFmt:       s.PixFmt,
		FastStart:    s.FastStart,
		ExtraArgs:    extra,
	}

	if s.Primary {
		p := encode
		p.Width = s.MaxWidth
		p.Height = s.MaxHeight
		p.MaxBitrate = int64(s.MaxBitrate)
		p.BufSize = int64(s.BufSize(s.MaxBitrate))
		tasks = append(tasks, media.DerivationTask{
			Asset:   asset,
			Kind:    media.TaskFormatConvert,
			Variant: VariantOptimized,
			Target:  filepath.Join(layout.OptimizedDir, asset.BaseName+"-optimized.mp4"),
			Params:  p,
		})
	}

	for _, tier := range s.Tiers {
		p := encode
		p.Width = tier.Width
		p.MaxBitrate = int64(tier.MaxBitrate)
		p.BufSize = int64(s.BufSize(tier.MaxBitrate))
		tasks = append(tasks, media.DerivationTask{
			Asset:   asset,
			Kind:    media.TaskQualityTier,
			Variant: tier.Name,
			Target:  filepath.Join(layout.OptimizedDir, fmt.Sprintf("%s-%s.mp4", asset.BaseName, tier.Name)),
			Params:  p,
		})
	}

	if s.Poster {
		tasks = append(tasks, media.DerivationTask{
			Asset:   asset,
			Kind:    media.TaskPosterExtract,
			Variant: VariantPoster,
			Target:  filepath.Join(layout.VideosDir, asset.BaseName+"-poster.jpg"),
			Params: media.TaskParams{
				Format:     "jpg",
				Quality:    s.PosterQuality,
				Width:      s.PosterMaxWidth,
				SeekOffset: s.PosterOffset,
			},
		})
	}

	return tasks
}

// formatOf возвращает формат по расширению (jpeg -> jpg).
func formatOf(ext string) string {
	f := strings.ToLower(strings.TrimPrefix(ext, "."))
	if f == "jpeg" {
		return "jpg"
	}
	return f
}
