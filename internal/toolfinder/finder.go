// Package toolfinder отвечает за поиск внешних инструментов (vips, ffmpeg, ffprobe).
package toolfinder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// ErrToolNotFound возвращается, если инструмент не найден ни по одному из путей.
var ErrToolNotFound = errors.New("инструмент не найден")

// Tool описывает внешний инструмент.
type Tool struct {
	// Name - имя бинарника без расширения.
	Name string

	// EnvVar - переменная окружения с путём к бинарнику.
	EnvVar string

	// VersionArg - аргумент проверки работоспособности.
	VersionArg string

	// InstallHint - подсказка по установке.
	InstallHint string
}

// Известные инструменты.
var (
	Vips = Tool{
		Name:        "vips",
		EnvVar:      "MEDIAOPT_VIPS",
		VersionArg:  "--version",
		InstallHint: "apt install libvips-tools / brew install vips",
	}
	FFmpeg = Tool{
		Name:        "ffmpeg",
		EnvVar:      "MEDIAOPT_FFMPEG",
		VersionArg:  "-version",
		InstallHint: "apt install ffmpeg / brew install ffmpeg",
	}
	FFprobe = Tool{
		Name:        "ffprobe",
		EnvVar:      "MEDIAOPT_FFPROBE",
		VersionArg:  "-version",
		InstallHint: "apt install ffmpeg / brew install ffmpeg",
	}
)

// ToolInfo содержит информацию о найденном инструменте.
type ToolInfo struct {
	// Name - имя инструмента.
	Name string

	// Path - абсолютный путь к бинарнику.
	Path string

	// Version - версия (например, "8.14.2" или "6.1.1").
	Version string
}

// Finder ищет бинарник инструмента.
type Finder struct {
	// Tool - что ищем.
	Tool Tool

	// CustomPath - пользовательский путь (из флага или конфига).
	CustomPath string

	// Timeout - таймаут проверки версии.
	Timeout time.Duration
}

// NewFinder создаёт новый Finder.
func NewFinder(tool Tool, customPath string) *Finder {
	return &Finder{
		Tool:       tool,
		CustomPath: customPath,
		Timeout:    10 * time.Second,
	}
}

// Find ищет инструмент в следующем порядке:
// 1. CustomPath (если задан)
// 2. Переменная окружения Tool.EnvVar
// 3. PATH
// 4. Рядом с исполняемым файлом в ./bin/<os-arch>/
func (f *Finder) Find(ctx context.Context) (*ToolInfo, error) {
	var candidates []string

	// 1. Пользовательский путь
	if f.CustomPath != "" {
		candidates = append(candidates, f.CustomPath)
	}

	// 2. Переменная окружения
	if envPath := os.Getenv(f.Tool.EnvVar); envPath != "" {
		candidates = append(candidates, envPath)
	}

	// 3. PATH
	if p, err := exec.LookPath(f.Tool.Name); err == nil {
		candidates = append(candidates, p)
	}

	// 4. Рядом с бинарником
	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		platformDir := fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH)
		bin := binaryName(f.Tool.Name)

		candidates = append(candidates,
			filepath.Join(execDir, "bin", platformDir, bin),
			filepath.Join(execDir, "bin", bin),
			filepath.Join(execDir, bin),
		)
	}

	for _, path := range candidates {
		if info, err := f.check(ctx, path); err == nil {
			return info, nil
		}
	}

	return nil, fmt.Errorf("%w: %s. Проверьте:\n"+
		"  1. Установлен ли %s в системе (%s)\n"+
		"  2. Установлена ли переменная окружения %s\n"+
		"  3. Указан ли путь через флаг --%s-path\n"+
		"  4. Находится ли %s рядом с утилитой в ./bin/<os-arch>/",
		ErrToolNotFound, f.Tool.Name, f.Tool.Name, f.Tool.InstallHint,
		f.Tool.EnvVar, f.Tool.Name, f.Tool.Name)
}

// check проверяет, является ли путь рабочим бинарником.
func (f *Finder) check(ctx context.Context, path string) (*ToolInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("файл не найден: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить абсолютный путь: %w", err)
	}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	output, err := exec.CommandContext(ctx, absPath, f.Tool.VersionArg).Output()
	if err != nil {
		return nil, fmt.Errorf("не удалось выполнить %s %s: %w", f.Tool.Name, f.Tool.VersionArg, err)
	}

	return &ToolInfo{
		Name:    f.Tool.Name,
		Path:    absPath,
		Version: parseVersion(f.Tool.Name, string(output)),
	}, nil
}

// parseVersion извлекает версию из первой строки вывода.
// Примеры: "vips-8.14.2", "ffmpeg version 6.1.1-3ubuntu5 Copyright ...".
func parseVersion(name, output string) string {
	line := strings.TrimSpace(output)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}

	for _, prefix := range []string{name + "-", name + " version ", name + " "} {
		if strings.HasPrefix(line, prefix) {
			rest := strings.TrimPrefix(line, prefix)
			if fields := strings.Fields(rest); len(fields) > 0 {
				return fields[0]
			}
		}
	}

	return line
}

// binaryName возвращает имя бинарника для текущей ОС.
func binaryName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

/*
Возможные расширения:
- Кэширование результата поиска между запусками в watch-режиме
- Проверка минимальной версии ffmpeg
*/
