// Package probe определяет размеры и метаданные исходников перед кодированием.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/artemshloyda/mediaopt/internal/media"
)

// ErrNoVideoStream возвращается, если в файле нет видеопотока.
var ErrNoVideoStream = errors.New("видеопоток не найден")

// Info - результат пробы исходника.
type Info struct {
	// Width, Height - отображаемые размеры (с учётом поворота).
	Width  int
	Height int

	// Duration - длительность видео (0 для изображений).
	Duration time.Duration

	// Bitrate - общий битрейт, бит/с (0 если неизвестен).
	Bitrate int64

	// Codec - кодек или формат изображения.
	Codec string
}

// Resolution возвращает "WxH" или "unknown".
func (i *Info) Resolution() string {
	if i == nil || i.Width <= 0 || i.Height <= 0 {
		return "unknown"
	}
	return fmt.Sprintf("%dx%d", i.Width, i.Height)
}

// Prober определяет размеры исходника.
type Prober interface {
	Probe(ctx context.Context, asset media.SourceAsset) (*Info, error)
}

// ByKind выбирает пробер по типу медиа.
type ByKind struct {
	Image Prober
	Video Prober
}

// Probe реализует Prober.
func (b ByKind) Probe(ctx context.Context, asset media.SourceAsset) (*Info, error) {
	var p Prober
	switch asset.Kind {
	case media.KindImage:
		p = b.Image
	case media.KindVideo:
		p = b.Video
	}
	if p == nil {
		return nil, fmt.Errorf("нет пробера для %s", asset.Kind)
	}
	return p.Probe(ctx, asset)
}
