package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/artemshloyda/mediaopt/internal/config"
	"github.com/artemshloyda/mediaopt/internal/media"
	"github.com/artemshloyda/mediaopt/internal/pipeline"
	"github.com/artemshloyda/mediaopt/internal/scanner"
	"github.com/artemshloyda/mediaopt/internal/watcher"
)

// watchAndRun следит за входными директориями и перезапускает пайплайн типа
// при появлении новых исходников. Возвращается после отмены контекста.
func watchAndRun(ctx context.Context, out io.Writer, cfg *config.Config, deps pipeline.Deps, kinds []media.Kind, initial []*pipeline.Result) error {
	layout := cfg.Layout()

	var sources []watcher.Source
	for _, kind := range kinds {
		switch kind {
		case media.KindImage:
			sources = append(sources, watcher.Source{Kind: kind, Dir: layout.ImagesDir, Rules: scanner.ImageRules(&cfg.Spec.Image)})
		case media.KindVideo:
			sources = append(sources, watcher.Source{Kind: kind, Dir: layout.VideosDir, Rules: scanner.VideoRules(&cfg.Spec.Video)})
		}
	}

	w, err := watcher.New(sources, deps.Logger)
	if err != nil {
		return err
	}
	for _, res := range initial {
		w.MarkProcessed(res.Kind, assetNames(res)...)
	}

	triggers, err := w.Watch(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "👀 Слежение за новыми файлами (Ctrl+C для выхода)...")

	for t := range triggers {
		fmt.Fprintf(out, "\n📥 Новые файлы (%s): %s\n", kindTitle(t.Kind), strings.Join(t.Names, ", "))

		res, err := pipeline.New(cfg, t.Kind, deps).Run(ctx)
		if err != nil {
			fmt.Fprintf(out, "❌ %s: %v\n", kindTitle(t.Kind), err)
			continue
		}
		w.MarkProcessed(t.Kind, assetNames(res)...)
		printResult(out, cfg, res)
	}

	return nil
}

func assetNames(res *pipeline.Result) []string {
	names := make([]string, len(res.Reports))
	for i, r := range res.Reports {
		names[i] = r.Asset.Name
	}
	return names
}
