package manifest

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/artemshloyda/mediaopt/internal/media"
)

const fence = "```"

var funcs = template.FuncMap{
	"srcset":   srcset,
	"yesno":    yesno,
	"failed":   func(r media.AssetReport) string { return orDash(strings.Join(r.FailedVariants(), ", ")) },
	"count":    func(r media.AssetReport, s string) int { return r.Count(media.TaskStatus(s)) },
	"withTier": func(base, tier string) string { return base + "-" + tier + ".mp4" },
}

var imageTemplate = template.Must(template.New("images").Funcs(funcs).Parse(`# Responsive Images Usage Guide

## Generated Image Variants

For each original image, the following variants have been created:
{{if .Spec.Image.WebP}}
### WebP Formats (in {{.WebPDir}}/)
- Original size WebP versions for better compression
{{end}}{{if .Widths}}
### Responsive Variants (in {{.Responsive}}/)
{{range .Widths}}- {{.}}px width variants
{{end}}{{end}}
## Usage

` + fence + `jsx
<picture>
{{- if .Spec.Image.ResponsiveWebP}}
  <source
    type="image/webp"
    srcSet="{{srcset .Responsive .Example .Widths ".webp"}}"
  />
{{- end}}
  <img
    src="{{.Images}}/{{.Example}}{{.ExampleExt}}"
    srcSet="{{srcset .Responsive .Example .Widths .VariantExt}}"
    sizes="100vw"
    alt=""
  />
</picture>
` + fence + `

## Optimization Settings Used

- **Quality**: {{.Spec.Image.Quality}}
- **PNG palette quality**: {{.Spec.Image.PNGQuality}}
- **Originals optimized in place**: {{yesno .Spec.Image.OptimizeOriginal}}
- **Metadata stripped**: {{yesno .Spec.Image.StripMetadata}}

## Image Files Processed

{{range .Files}}- {{.}}
{{end}}{{template "outcomes" .}}
Generated on: {{.Generated}}
` + outcomesTemplate))

var videoTemplate = template.Must(template.New("videos").Funcs(funcs).Parse(`# Video Optimization Usage Guide

## Generated Video Variants

For each original video, the following optimized versions have been created:

### Optimized Versions (in {{.Optimized}}/)
{{if .Spec.Video.Primary}}- **Main optimized**: ` + "`filename-optimized.mp4`" + ` - Primary version, up to {{.Spec.Video.MaxWidth}}x{{.Spec.Video.MaxHeight}}, {{.Spec.Video.MaxBitrate}} bitrate
{{end}}{{range .Spec.Video.Tiers}}- **{{.Name}}**: ` + "`filename-{{.Name}}.mp4`" + ` - {{.Width}}px width, {{.MaxBitrate}} bitrate
{{end}}{{if .Spec.Video.Poster}}
### Poster Images
- **Video posters**: ` + "`filename-poster.jpg`" + ` in {{.Videos}}/ - frame at {{.Spec.Video.PosterOffset}}
{{end}}
## Usage

` + fence + `jsx
<video
{{- if .Spec.Video.Primary}}
  src="{{.Optimized}}/{{.Example}}-optimized.mp4"
{{- end}}
{{- if .Spec.Video.Poster}}
  poster="{{.Videos}}/{{.Example}}-poster.jpg"
{{- end}}
  muted
  playsInline
  preload="metadata"
>
{{- range .Spec.Video.Tiers}}
  <source src="{{$.Optimized}}/{{withTier $.Example .Name}}" type="video/mp4" />
{{- end}}
</video>
` + fence + `

## Optimization Settings Used

- **Quality (CRF)**: {{.Spec.Video.CRF}}
- **Preset**: {{.Spec.Video.Preset}}
- **Target Bitrate**: {{.Spec.Video.MaxBitrate}}
- **Buffer Size**: {{.BufSize}}
- **Audio Bitrate**: {{.Spec.Video.AudioBitrate}}
- **Max Resolution**: {{.Spec.Video.MaxWidth}}x{{.Spec.Video.MaxHeight}}
- **Profile**: {{.Spec.Video.Profile}} {{.Spec.Video.Level}}, {{.Spec.Video.PixFmt}}
- **Fast start**: {{yesno .Spec.Video.FastStart}}

## Video Files Processed

{{range .Files}}- {{.}}
{{end}}{{template "outcomes" .}}
Generated on: {{.Generated}}
` + outcomesTemplate))

const outcomesTemplate = `{{define "outcomes"}}{{if .IncludeOutcomes}}
## Task Outcomes

| File | Succeeded | Failed | Skipped | Failed variants |
|---|---|---|---|---|
{{range .Assets}}| {{.Asset.Name}} | {{count . "succeeded"}} | {{count . "failed"}} | {{count . "skipped"}} | {{failed .}} |
{{end}}{{end}}{{end}}`

// srcset строит значение srcSet по списку ширин.
func srcset(dir, base string, widths []int, ext string) string {
	parts := make([]string, 0, len(widths))
	for _, w := range widths {
		parts = append(parts, fmt.Sprintf("%s/%s-%dw%s %dw", dir, base, w, ext, w))
	}
	return strings.Join(parts, ", ")
}

func yesno(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
