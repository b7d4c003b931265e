package converter

import (
	"fmt"
	"strconv"
	"time"

	"github.com/artemshloyda/mediaopt/internal/config"
	"github.com/artemshloyda/mediaopt/internal/media"
	"github.com/artemshloyda/mediaopt/internal/probe"
)

// ffmpegArgs строит команду ffmpeg для задачи над видео.
func ffmpegArgs(ffmpegPath string, task media.DerivationTask, dims *probe.Info, output string) ([]string, error) {
	switch task.Kind {
	case media.TaskFormatConvert, media.TaskQualityTier:
		return encodeArgs(ffmpegPath, task, dims, output), nil
	case media.TaskPosterExtract:
		return posterArgs(ffmpegPath, task, dims, output), nil
	}
	return nil, fmt.Errorf("ffmpeg не поддерживает задачу %s", task.Kind)
}

// encodeArgs - основная версия и ступени качества.
func encodeArgs(ffmpegPath string, task media.DerivationTask, dims *probe.Info, output string) []string {
	p := task.Params

	args := []string{ffmpegPath, "-hide_banner", "-nostdin", "-y", "-i", task.Asset.Path}

	if p.VideoCodec != "" {
		args = append(args, "-c:v", p.VideoCodec)
	}
	args = append(args, "-crf", strconv.Itoa(p.CRF))
	if p.Preset != "" {
		args = append(args, "-preset", p.Preset)
	}
	if p.Profile != "" {
		args = append(args, "-profile:v", p.Profile)
	}
	if p.Level != "" {
		args = append(args, "-level", p.Level)
	}
	if p.PixFmt != "" {
		args = append(args, "-pix_fmt", p.PixFmt)
	}
	if p.MaxBitrate > 0 {
		args = append(args, "-maxrate", config.Bitrate(p.MaxBitrate).String())
	}
	if p.BufSize > 0 {
		args = append(args, "-bufsize", config.Bitrate(p.BufSize).String())
	}

	if vf := encodeScaleFilter(task, dims); vf != "" {
		args = append(args, "-vf", vf)
	}

	if p.AudioCodec != "" {
		args = append(args, "-c:a", p.AudioCodec)
	}
	if p.AudioBitrate > 0 {
		args = append(args, "-b:a", config.Bitrate(p.AudioBitrate).String())
	}
	if p.FastStart {
		args = append(args, "-movflags", "+faststart")
	}

	args = append(args, p.ExtraArgs...)
	return append(args, output)
}

// posterArgs - один кадр JPEG.
func posterArgs(ffmpegPath string, task media.DerivationTask, dims *probe.Info, output string) []string {
	p := task.Params

	offset := p.SeekOffset
	// Для клипов короче смещения берём середину
	if dims != nil && dims.Duration > 0 && offset >= dims.Duration {
		offset = dims.Duration / 2
	}

	args := []string{ffmpegPath, "-hide_banner", "-nostdin", "-y",
		"-ss", FormatTimestamp(offset),
		"-i", task.Asset.Path,
		"-frames:v", "1",
	}
	if p.Quality > 0 {
		args = append(args, "-q:v", strconv.Itoa(p.Quality))
	}
	if vf := posterScaleFilter(p.Width, dims); vf != "" {
		args = append(args, "-vf", vf)
	}
	return append(args, output)
}

// encodeScaleFilter возвращает -vf для кодирования или "" если масштаб не нужен.
func encodeScaleFilter(task media.DerivationTask, dims *probe.Info) string {
	if dims == nil {
		return ""
	}
	p := task.Params

	// Основная версия: вписать в MaxWidth x MaxHeight
	if p.Height > 0 {
		w, h, ok := FitWithin(dims.Width, dims.Height, p.Width, p.Height)
		if !ok {
			return ""
		}
		return fmt.Sprintf("scale=%d:%d", w, h)
	}

	// Ступень: только потолок ширины
	if p.Width > 0 && dims.Width > p.Width {
		return fmt.Sprintf("scale=%d:-2", p.Width)
	}
	return ""
}

// posterScaleFilter ограничивает ширину постера.
// Без пробы ограничение считает сам ffmpeg, увеличения не бывает в обоих случаях.
func posterScaleFilter(maxWidth int, dims *probe.Info) string {
	if maxWidth <= 0 {
		return ""
	}
	if dims == nil {
		return fmt.Sprintf("scale='min(%d,iw)':-2", maxWidth)
	}
	if dims.Width > maxWidth {
		return fmt.Sprintf("scale=%d:-2", maxWidth)
	}
	return ""
}

// FitWithin вписывает srcW x srcH в maxW x maxH с сохранением пропорций.
// Возвращает ok=false, если исходник уже помещается. Размеры округляются вниз до чётных.
func FitWithin(srcW, srcH, maxW, maxH int) (w, h int, ok bool) {
	if srcW <= 0 || srcH <= 0 {
		return 0, 0, false
	}
	if (maxW <= 0 || srcW <= maxW) && (maxH <= 0 || srcH <= maxH) {
		return srcW, srcH, false
	}

	scale := 1.0
	if maxW > 0 {
		scale = float64(maxW) / float64(srcW)
	}
	if maxH > 0 {
		if s := float64(maxH) / float64(srcH); s < scale {
			scale = s
		}
	}

	w = even(int(float64(srcW) * scale))
	h = even(int(float64(srcH) * scale))
	return w, h, true
}

// TargetWidth возвращает ширину результата: min(исходная, потолок).
func TargetWidth(srcWidth, ceiling int) int {
	if ceiling <= 0 {
		return srcWidth
	}
	if srcWidth > 0 && srcWidth < ceiling {
		return srcWidth
	}
	return ceiling
}

// even округляет вниз до чётного, минимум 2.
func even(n int) int {
	n -= n % 2
	if n < 2 {
		return 2
	}
	return n
}

// FormatTimestamp форматирует смещение как HH:MM:SS.mmm.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
