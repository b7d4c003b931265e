// Package storage содержит логику журнала запусков в SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/artemshloyda/mediaopt/internal/media"
)

// Storage предоставляет методы для работы с журналом запусков.
type Storage struct {
	db *sql.DB

	// now - источник времени. Подменяется в тестах.
	now func() time.Time
}

// New создаёт новое подключение к SQLite и выполняет миграции.
func New(dbPath string) (*Storage, error) {
	// Создаём директорию для БД, если не существует
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию для БД: %w", err)
	}

	// Открываем/создаём БД с параметрами для concurrent доступа
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_foreign_keys=on", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть БД: %w", err)
	}

	// Проверяем подключение
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("не удалось подключиться к БД: %w", err)
	}

	// SQLite не поддерживает concurrent writes
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Storage{db: db, now: time.Now}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("не удалось выполнить миграции: %w", err)
	}

	return s, nil
}

// migrate выполняет все SQL-миграции.
func (s *Storage) migrate() error {
	for i, m := range GetMigrations() {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("миграция %d: %w", i+1, err)
		}
	}
	return nil
}

// Close закрывает подключение к БД.
func (s *Storage) Close() error {
	return s.db.Close()
}

// MarkInterrupted переводит зависшие запуски running в interrupted.
// Вызывается при старте для очистки после аварийного завершения.
func (s *Storage) MarkInterrupted() (int64, error) {
	result, err := s.db.Exec(
		"UPDATE runs SET status = ?, finished_at = ? WHERE status = ?",
		RunInterrupted, s.now().UnixMilli(), RunRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("не удалось сбросить незавершённые запуски: %w", err)
	}
	return result.RowsAffected()
}

// StartRun создаёт запись о запуске и возвращает её ID.
func (s *Storage) StartRun(kind media.Kind, specHash string, dryRun bool) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, kind, spec_hash, status, dry_run, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(kind), specHash, RunRunning, dryRun, s.now().UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("не удалось создать запуск: %w", err)
	}
	return id, nil
}

// RecordReport сохраняет результаты задач одного исходника в одной транзакции.
func (s *Storage) RecordReport(runID string, report media.AssetReport) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("не удалось начать транзакцию: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO outcomes (run_id, asset, task_kind, variant, target, status, error, output_size, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("не удалось подготовить запрос: %w", err)
	}
	defer stmt.Close()

	for _, o := range report.Outcomes {
		var errMsg *string
		if msg := o.ErrorMessage(); msg != "" {
			errMsg = &msg
		}
		if _, err := stmt.Exec(
			runID, report.Asset.Name, string(o.Task.Kind), o.Task.Variant, o.Task.Target,
			string(o.Status), errMsg, o.OutputSize, o.Duration.Milliseconds(),
		); err != nil {
			return fmt.Errorf("не удалось записать результат %s/%s: %w", report.Asset.Name, o.Task.Variant, err)
		}
	}

	return tx.Commit()
}

// FinishRun записывает итог запуска.
func (s *Storage) FinishRun(runID string, status RunStatus, totals RunTotals, runErr error) error {
	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}

	result, err := s.db.Exec(`
		UPDATE runs SET status = ?, assets = ?, succeeded = ?, failed = ?, skipped = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		status, totals.Assets, totals.Succeeded, totals.Failed, totals.Skipped, errMsg, s.now().UnixMilli(), runID,
	)
	if err != nil {
		return fmt.Errorf("не удалось обновить запуск: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("запуск %s не найден", runID)
	}
	return nil
}

// GetRun возвращает запуск по ID.
func (s *Storage) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(runColumns+` WHERE id = ?`, runID)
	run, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать запуск %s: %w", runID, err)
	}
	return run, nil
}

// RecentRuns возвращает последние запуски, новые первыми.
func (s *Storage) RecentRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(runColumns+` ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать запуски: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetTotals возвращает сводку по всему журналу.
func (s *Storage) GetTotals() (*Totals, error) {
	var t Totals
	if err := s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&t.Runs); err != nil {
		return nil, fmt.Errorf("не удалось посчитать запуски: %w", err)
	}

	err := s.db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(output_size), 0)
		FROM outcomes`,
		media.StatusSucceeded, media.StatusFailed, media.StatusSkipped,
	).Scan(&t.Succeeded, &t.Failed, &t.Skipped, &t.OutputBytes)
	if err != nil {
		return nil, fmt.Errorf("не удалось посчитать задачи: %w", err)
	}

	return &t, nil
}

// FailedOutcomes возвращает пары "исходник/вариант: ошибка" для запуска.
func (s *Storage) FailedOutcomes(runID string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT asset, variant, COALESCE(error, '') FROM outcomes WHERE run_id = ? AND status = ? ORDER BY id`,
		runID, media.StatusFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать ошибки: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var asset, variant, msg string
		if err := rows.Scan(&asset, &variant, &msg); err != nil {
			return nil, err
		}
		out = append(out, fmt.Sprintf("%s/%s: %s", asset, variant, msg))
	}
	return out, rows.Err()
}

const runColumns = `SELECT id, kind, spec_hash, status, dry_run, assets, succeeded, failed, skipped, error, started_at, finished_at FROM runs`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run      Run
		errMsg   sql.NullString
		started  int64
		finished sql.NullInt64
	)
	if err := row.Scan(
		&run.ID, &run.Kind, &run.SpecHash, &run.Status, &run.DryRun,
		&run.Assets, &run.Succeeded, &run.Failed, &run.Skipped,
		&errMsg, &started, &finished,
	); err != nil {
		return nil, err
	}

	run.Error = errMsg.String
	run.StartedAt = time.UnixMilli(started)
	if finished.Valid {
		t := time.UnixMilli(finished.Int64)
		run.FinishedAt = &t
	}
	return &run, nil
}

/*
Возможные расширения:
- Экспорт журнала в JSON
- Сравнение размеров результатов между запусками
*/
