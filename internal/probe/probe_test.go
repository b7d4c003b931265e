package probe

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artemshloyda/mediaopt/internal/media"
)

// MP4 с обложкой (attached pic идёт первым и должен быть пропущен).
const sampleMP4 = `{
  "streams": [
    {
      "index": 0,
      "codec_name": "mjpeg",
      "codec_type": "video",
      "width": 600,
      "height": 600,
      "disposition": { "default": 0, "attached_pic": 1 }
    },
    {
      "index": 1,
      "codec_name": "h264",
      "codec_type": "video",
      "width": 3840,
      "height": 2160,
      "disposition": { "default": 1, "attached_pic": 0 },
      "tags": {}
    },
    {
      "index": 2,
      "codec_name": "aac",
      "codec_type": "audio",
      "disposition": { "default": 1 }
    }
  ],
  "format": {
    "filename": "/site/public/videos/intro.mp4",
    "format_name": "mov,mp4,m4a,3gp,3g2,mj2",
    "duration": "12.500000",
    "size": "31457280",
    "bit_rate": "20132659"
  }
}`

const samplePortrait = `{
  "streams": [
    {
      "index": 0,
      "codec_name": "hevc",
      "codec_type": "video",
      "width": 1920,
      "height": 1080,
      "side_data_list": [
        { "side_data_type": "Display Matrix", "rotation": -90 }
      ]
    }
  ],
  "format": { "duration": "3.0", "bit_rate": "8000000" }
}`

const sampleLegacyRotate = `{
  "streams": [
    { "codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720, "tags": { "rotate": "90" } }
  ],
  "format": {}
}`

func TestParseJSON(t *testing.T) {
	info, err := ParseJSON([]byte(sampleMP4))
	require.NoError(t, err)

	assert.Equal(t, 3840, info.Width)
	assert.Equal(t, 2160, info.Height)
	assert.Equal(t, "h264", info.Codec)
	assert.Equal(t, 12500*time.Millisecond, info.Duration)
	assert.Equal(t, int64(20132659), info.Bitrate)
	assert.Equal(t, "3840x2160", info.Resolution())
}

func TestParseJSON_Rotation(t *testing.T) {
	tests := []struct {
		name  string
		json  string
		wantW int
		wantH int
	}{
		{"display matrix", samplePortrait, 1080, 1920},
		{"rotate tag", sampleLegacyRotate, 720, 1280},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := ParseJSON([]byte(tt.json))
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, info.Width)
			assert.Equal(t, tt.wantH, info.Height)
		})
	}
}

func TestParseJSON_NoVideo(t *testing.T) {
	_, err := ParseJSON([]byte(`{"streams":[{"codec_type":"audio"}],"format":{}}`))
	assert.True(t, errors.Is(err, ErrNoVideoStream))
}

func TestParseJSON_Invalid(t *testing.T) {
	_, err := ParseJSON([]byte(`not json`))
	assert.Error(t, err)
}

func TestInfo_Resolution_Unknown(t *testing.T) {
	var info *Info
	assert.Equal(t, "unknown", info.Resolution())
	assert.Equal(t, "unknown", (&Info{Width: 10}).Resolution())
}

func TestImageProber(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	require.NoError(t, imaging.Save(imaging.New(320, 200, color.NRGBA{R: 200, A: 255}), path))

	info, err := ImageProber{}.Probe(context.Background(), media.NewSourceAsset(path, media.KindImage))
	require.NoError(t, err)

	assert.Equal(t, 320, info.Width)
	assert.Equal(t, 200, info.Height)
	assert.Equal(t, "png", info.Codec)
}

func TestImageProber_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	require.NoError(t, writeBytes(path, []byte("not an image")))

	_, err := ImageProber{}.Probe(context.Background(), media.NewSourceAsset(path, media.KindImage))
	assert.Error(t, err)
}

type stubProber struct{ info *Info }

func (s stubProber) Probe(context.Context, media.SourceAsset) (*Info, error) {
	return s.info, nil
}

func TestByKind(t *testing.T) {
	p := ByKind{
		Image: stubProber{&Info{Width: 1}},
		Video: stubProber{&Info{Width: 2}},
	}

	img, err := p.Probe(context.Background(), media.SourceAsset{Kind: media.KindImage})
	require.NoError(t, err)
	assert.Equal(t, 1, img.Width)

	vid, err := p.Probe(context.Background(), media.SourceAsset{Kind: media.KindVideo})
	require.NoError(t, err)
	assert.Equal(t, 2, vid.Width)

	_, err = ByKind{}.Probe(context.Background(), media.SourceAsset{Kind: media.KindVideo})
	assert.Error(t, err)
}

func writeBytes(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
