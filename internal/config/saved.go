package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SavedProfile - сохранённый пользователем набор настроек.
type SavedProfile struct {
	// Name - имя профиля.
	Name string
	// Path - путь к YAML файлу.
	Path string
	// Config - содержимое (nil, если файл не читается).
	Config *FileConfig
}

// SavedProfilesDir возвращает директорию сохранённых профилей.
// Переменная MEDIAOPT_PROFILES_DIR переопределяет путь по умолчанию.
func SavedProfilesDir() (string, error) {
	if dir := os.Getenv("MEDIAOPT_PROFILES_DIR"); dir != "" {
		return dir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("не удалось получить домашнюю директорию: %w", err)
	}

	return filepath.Join(homeDir, ".config", "mediaopt", "profiles"), nil
}

// savedProfilePath возвращает путь к файлу профиля по имени.
func savedProfilePath(name string) (string, error) {
	dir, err := SavedProfilesDir()
	if err != nil {
		return "", err
	}

	safeName := sanitizeProfileName(name)
	if safeName == "" {
		return "", fmt.Errorf("некорректное имя профиля: %s", name)
	}

	return filepath.Join(dir, safeName+".yaml"), nil
}

// sanitizeProfileName оставляет только буквы, цифры, дефисы и подчёркивания.
func sanitizeProfileName(name string) string {
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// SaveProfile сохраняет текущие настройки под именем.
func SaveProfile(name string, cfg *Config) (string, error) {
	path, err := savedProfilePath(name)
	if err != nil {
		return "", err
	}

	if err := FromConfig(cfg).SaveToFile(path); err != nil {
		return "", fmt.Errorf("не удалось сохранить профиль: %w", err)
	}

	return path, nil
}

// LoadSavedProfile загружает сохранённый профиль.
func LoadSavedProfile(name string) (*FileConfig, string, error) {
	path, err := savedProfilePath(name)
	if err != nil {
		return nil, "", err
	}

	fc, err := LoadFromFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("не удалось загрузить профиль '%s': %w", name, err)
	}
	if fc == nil {
		return nil, "", fmt.Errorf("профиль '%s' не найден", name)
	}

	return fc, path, nil
}

// ListSavedProfiles возвращает сохранённые профили, отсортированные по имени.
func ListSavedProfiles() ([]SavedProfile, error) {
	dir, err := SavedProfilesDir()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []SavedProfile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать директорию профилей: %w", err)
	}

	profiles := []SavedProfile{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		fc, _ := LoadFromFile(path)

		profiles = append(profiles, SavedProfile{
			Name:   strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml"),
			Path:   path,
			Config: fc,
		})
	}

	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Name < profiles[j].Name
	})

	return profiles, nil
}

// DeleteSavedProfile удаляет сохранённый профиль.
func DeleteSavedProfile(name string) error {
	path, err := savedProfilePath(name)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("профиль '%s' не найден", name)
		}
		return fmt.Errorf("не удалось удалить профиль: %w", err)
	}

	return nil
}
