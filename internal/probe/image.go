package probe

import (
	"context"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/artemshloyda/mediaopt/internal/media"
)

// ImageProber определяет размеры изображения декодером imaging.
// EXIF-ориентация учитывается так же, как при автоповороте в vips.
type ImageProber struct{}

// Probe реализует Prober.
func (ImageProber) Probe(ctx context.Context, asset media.SourceAsset) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := imaging.Open(asset.Path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("не удалось декодировать %s: %w", asset.Name, err)
	}

	b := img.Bounds()
	return &Info{
		Width:  b.Dx(),
		Height: b.Dy(),
		Codec:  strings.ToLower(strings.TrimPrefix(asset.Ext, ".")),
	}, nil
}
