// Package storage содержит миграции SQLite базы данных.
package storage

// migrations содержит SQL-миграции в порядке выполнения.
var migrations = []string{
	// Миграция 1: Таблица запусков
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		spec_hash TEXT NOT NULL,
		status TEXT NOT NULL,
		dry_run INTEGER NOT NULL DEFAULT 0,
		assets INTEGER NOT NULL DEFAULT 0,
		succeeded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	);`,

	// Миграция 2: Результаты задач
	`CREATE TABLE IF NOT EXISTS outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		asset TEXT NOT NULL,
		task_kind TEXT NOT NULL,
		variant TEXT NOT NULL,
		target TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		output_size INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);`,

	// Миграция 3: Индексы
	`CREATE INDEX IF NOT EXISTS ix_runs_started ON runs (started_at);`,
	`CREATE INDEX IF NOT EXISTS ix_runs_status ON runs (status);`,
	`CREATE INDEX IF NOT EXISTS ix_outcomes_run ON outcomes (run_id);`,

	// Миграция 4: Таблица метаданных для версионирования схемы
	`CREATE TABLE IF NOT EXISTS schema_info (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,

	// Миграция 5: Запись версии схемы
	`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', '1');`,
}

// GetMigrations возвращает список SQL-миграций.
func GetMigrations() []string {
	return migrations
}

/*
Возможные расширения:
- Поддержка отката миграций (down migrations)
- Очистка результатов старше N запусков
*/
