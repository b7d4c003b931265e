// Package watcher следит за входными директориями и сообщает о новых исходниках.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/artemshloyda/mediaopt/internal/media"
	"github.com/artemshloyda/mediaopt/internal/scanner"
)

// Source - одна наблюдаемая директория.
type Source struct {
	Kind  media.Kind
	Dir   string
	Rules scanner.Rules
}

// Trigger - новые исходники одного типа, накопленные за период debounce.
type Trigger struct {
	Kind  media.Kind
	Names []string
}

// Watcher следит за директориями (без поддиректорий) и отправляет новые имена в канал.
// Имена, уже отмеченные обработанными, не вызывают повторного запуска:
// замена исходника на оптимизированную версию сохраняет имя.
type Watcher struct {
	sources []Source
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	// debounceTime - время ожидания после последнего события по типу.
	// Нужно для того, чтобы файлы успели полностью записаться.
	debounceTime time.Duration

	mu      sync.Mutex
	seen    map[media.Kind]map[string]bool
	pending map[media.Kind]map[string]time.Time
}

// New создаёт новый Watcher.
func New(sources []Source, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("не удалось создать watcher: %w", err)
	}

	watcher := &Watcher{
		sources:      sources,
		watcher:      w,
		logger:       logger,
		debounceTime: 500 * time.Millisecond,
		seen:         make(map[media.Kind]map[string]bool),
		pending:      make(map[media.Kind]map[string]time.Time),
	}
	for _, s := range sources {
		watcher.seen[s.Kind] = make(map[string]bool)
		watcher.pending[s.Kind] = make(map[string]time.Time)
	}
	return watcher, nil
}

// SetDebounceTime устанавливает время debounce.
func (w *Watcher) SetDebounceTime(d time.Duration) {
	w.debounceTime = d
}

// MarkProcessed добавляет имена в множество обработанных.
func (w *Watcher) MarkProcessed(kind media.Kind, names ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	seen, ok := w.seen[kind]
	if !ok {
		return
	}
	for _, n := range names {
		seen[n] = true
	}
}

// Watch запускает слежение и возвращает канал с триггерами.
// Канал закрывается после отмены контекста.
func (w *Watcher) Watch(ctx context.Context) (<-chan Trigger, error) {
	for _, s := range w.sources {
		if err := w.watcher.Add(s.Dir); err != nil {
			_ = w.watcher.Close()
			return nil, fmt.Errorf("не удалось добавить директорию %s: %w", s.Dir, err)
		}
	}

	triggers := make(chan Trigger, 8)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.processEvents(ctx)
	}()
	go func() {
		defer wg.Done()
		w.processPending(ctx, triggers)
	}()

	go func() {
		wg.Wait()
		_ = w.watcher.Close()
		close(triggers)
	}()

	return triggers, nil
}

// processEvents обрабатывает события от fsnotify.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Обрабатываем только создание и запись файлов
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.handle(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("ошибка watcher", zap.Error(err))
		}
	}
}

// handle ставит файл в очередь, если он подходит под правила директории.
func (w *Watcher) handle(path string) {
	dir := filepath.Dir(path)
	name := filepath.Base(path)

	for _, s := range w.sources {
		if filepath.Clean(s.Dir) != dir || !s.Rules.Match(name) {
			continue
		}

		w.mu.Lock()
		if !w.seen[s.Kind][name] {
			w.pending[s.Kind][name] = time.Now()
		}
		w.mu.Unlock()
	}
}

// processPending отправляет накопленные имена после debounce.
func (w *Watcher) processPending(ctx context.Context, triggers chan<- Trigger) {
	ticker := time.NewTicker(w.tick())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, t := range w.ready(time.Now()) {
				select {
				case triggers <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (w *Watcher) tick() time.Duration {
	if d := w.debounceTime / 5; d > 0 && d < 100*time.Millisecond {
		return d
	}
	return 100 * time.Millisecond
}

// ready забирает типы, по которым событий не было дольше debounce.
// Отданные имена сразу считаются обработанными.
func (w *Watcher) ready(now time.Time) []Trigger {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []Trigger
	for _, s := range w.sources {
		pending := w.pending[s.Kind]
		if len(pending) == 0 {
			continue
		}

		quiet := true
		for _, at := range pending {
			if now.Sub(at) < w.debounceTime {
				quiet = false
				break
			}
		}
		if !quiet {
			continue
		}

		names := make([]string, 0, len(pending))
		for name := range pending {
			names = append(names, name)
			w.seen[s.Kind][name] = true
		}
		sort.Strings(names)
		w.pending[s.Kind] = make(map[string]time.Time)

		out = append(out, Trigger{Kind: s.Kind, Names: names})
	}
	return out
}

/*
Возможные расширения:
- Обработка замены исходника с тем же именем (сравнение mtime)
- Обработка удаления исходника с очисткой производных файлов
*/
