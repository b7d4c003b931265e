// Package scanner отвечает за поиск исходных медиафайлов во входной директории.
package scanner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/artemshloyda/mediaopt/internal/config"
	"github.com/artemshloyda/mediaopt/internal/media"
)

// ErrDirectoryNotFound возвращается, если входная директория отсутствует.
var ErrDirectoryNotFound = errors.New("директория не найдена")

// Rules определяет, какие файлы считаются исходниками.
type Rules struct {
	// Extensions - допустимые расширения (без точки, регистр не важен).
	Extensions []string

	// ExcludeMarkers - подстроки имени, помечающие производные файлы (регистр не важен).
	ExcludeMarkers []string
}

// ImageRules возвращает правила для изображений.
func ImageRules(s *config.ImageSpec) Rules {
	return Rules{Extensions: s.Extensions, ExcludeMarkers: s.ExcludeMarkers}
}

// VideoRules возвращает правила для видео.
func VideoRules(s *config.VideoSpec) Rules {
	return Rules{Extensions: s.Extensions, ExcludeMarkers: s.ExcludeMarkers}
}

// Match проверяет имя файла по правилам.
// Скрытые файлы (в том числе временные файлы оптимизации и macOS ._*) не подходят никогда.
func (r Rules) Match(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}

	if !config.HasExtension(r.Extensions, filepath.Ext(name)) {
		return false
	}

	lower := strings.ToLower(name)
	for _, m := range r.ExcludeMarkers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return false
		}
	}

	return true
}

// Discover возвращает исходники из dir без обхода поддиректорий,
// отсортированные по имени.
func Discover(dir string, kind media.Kind, rules Rules) ([]media.SourceAsset, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, dir)
		}
		return nil, fmt.Errorf("не удалось прочитать %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s не является директорией", ErrDirectoryNotFound, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать %s: %w", dir, err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		absDir = dir
	}

	assets := []media.SourceAsset{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !rules.Match(entry.Name()) {
			continue
		}

		fi, err := entry.Info()
		if err != nil {
			// Файл удалён между ReadDir и Info
			continue
		}

		asset := media.NewSourceAsset(filepath.Join(absDir, entry.Name()), kind)
		asset.Size = fi.Size()
		asset.ModTime = fi.ModTime()
		assets = append(assets, asset)
	}

	sort.Slice(assets, func(i, j int) bool {
		return assets[i].Name < assets[j].Name
	})

	return assets, nil
}

/*
Возможные расширения:
- Добавить рекурсивный режим с исключением производных поддиректорий
- Добавить glob-паттерны исключений
*/
