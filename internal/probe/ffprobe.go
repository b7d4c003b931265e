package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/artemshloyda/mediaopt/internal/media"
)

// FFprobe определяет параметры видео одним вызовом ffprobe с JSON выводом.
type FFprobe struct {
	// Path - путь к ffprobe.
	Path string

	// Timeout - таймаут одного вызова.
	Timeout time.Duration
}

// NewFFprobe создаёт пробер видео.
func NewFFprobe(path string) *FFprobe {
	return &FFprobe{Path: path, Timeout: time.Minute}
}

// Probe реализует Prober.
func (p *FFprobe) Probe(ctx context.Context, asset media.SourceAsset) (*Info, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p.Path,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		asset.Path,
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %q: %w", asset.Path, err)
	}

	return ParseJSON(out)
}

// ParseJSON разбирает вывод ffprobe. Экспортирована для тестов без ffprobe.
func ParseJSON(data []byte) (*Info, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("разбор JSON ffprobe: %w", err)
	}

	for i := range raw.Streams {
		s := &raw.Streams[i]
		if s.CodecType != "video" || s.Disposition["attached_pic"] == 1 {
			continue
		}
		if s.Width <= 0 || s.Height <= 0 {
			continue
		}

		info := &Info{
			Width:    s.Width,
			Height:   s.Height,
			Codec:    s.CodecName,
			Duration: time.Duration(parseFloat(raw.Format.Duration) * float64(time.Second)),
			Bitrate:  parseInt64(raw.Format.BitRate),
		}

		// ffmpeg поворачивает кадр автоматически, поэтому фильтры считаются по отображаемым размерам
		if r := s.rotation(); r == 90 || r == 270 {
			info.Width, info.Height = info.Height, info.Width
		}

		return info, nil
	}

	return nil, ErrNoVideoStream
}

// --- ffprobe JSON wire types ---

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type ffprobeStream struct {
	Index       int               `json:"index"`
	CodecName   string            `json:"codec_name"`
	CodecType   string            `json:"codec_type"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	Disposition map[string]int    `json:"disposition"`
	Tags        map[string]string `json:"tags"`
	SideData    []ffprobeSideData `json:"side_data_list"`
}

type ffprobeSideData struct {
	SideDataType string  `json:"side_data_type"`
	Rotation     float64 `json:"rotation"`
}

// rotation возвращает поворот в градусах, нормализованный к [0, 360).
// Старые контейнеры хранят его в теге rotate, новые - в display matrix.
func (s *ffprobeStream) rotation() int {
	deg := 0.0
	if v, ok := s.Tags["rotate"]; ok {
		deg = parseFloat(v)
	}
	for _, sd := range s.SideData {
		if sd.Rotation != 0 {
			deg = sd.Rotation
			break
		}
	}
	r := int(math.Round(deg)) % 360
	if r < 0 {
		r += 360
	}
	return r
}

// --- ffprobe возвращает числа строками ---

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}
