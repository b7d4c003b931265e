// Package storage содержит модели и логику журнала запусков в SQLite.
package storage

import "time"

// RunStatus определяет статус запуска.
type RunStatus string

const (
	// RunRunning - запуск выполняется.
	RunRunning RunStatus = "running"
	// RunCompleted - все исходники обработаны (отдельные задачи могли упасть).
	RunCompleted RunStatus = "completed"
	// RunAborted - запуск остановлен до обработки (нет инструмента, нет директории).
	RunAborted RunStatus = "aborted"
	// RunCancelled - запуск прерван сигналом.
	RunCancelled RunStatus = "cancelled"
	// RunInterrupted - процесс завершился аварийно, запись найдена при следующем старте.
	RunInterrupted RunStatus = "interrupted"
)

// Run представляет один запуск пайплайна.
type Run struct {
	// ID - uuid запуска.
	ID string

	// Kind - тип медиа (image, video).
	Kind string

	// SpecHash - sha256 каталога вариантов.
	SpecHash string

	// Status - статус запуска.
	Status RunStatus

	// DryRun - запуск в режиме симуляции.
	DryRun bool

	// Assets, Succeeded, Failed, Skipped - итоговые счётчики.
	Assets    int64
	Succeeded int64
	Failed    int64
	Skipped   int64

	// Error - причина остановки (для aborted).
	Error string

	// StartedAt, FinishedAt - время начала и конца.
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Duration возвращает длительность запуска (0 для незавершённых).
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunTotals - счётчики, записываемые при завершении запуска.
type RunTotals struct {
	Assets    int64
	Succeeded int64
	Failed    int64
	Skipped   int64
}

// Totals - сводка по всему журналу.
type Totals struct {
	// Runs - количество запусков.
	Runs int64

	// Succeeded, Failed, Skipped - количество задач по статусам.
	Succeeded int64
	Failed    int64
	Skipped   int64

	// OutputBytes - суммарный размер созданных файлов.
	OutputBytes int64
}
