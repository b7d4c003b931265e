package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
)

// Runner запускает внешний процесс. Подменяется в тестах.
type Runner interface {
	Run(ctx context.Context, argv []string) error
}

// ExecError - ошибка внешнего процесса с хвостом stderr.
type ExecError struct {
	// Argv - запущенная команда.
	Argv []string

	// ExitCode - код выхода (-1 если процесс не стартовал или был убит).
	ExitCode int

	// Stderr - последние строки stderr.
	Stderr string

	// Err - исходная ошибка.
	Err error
}

func (e *ExecError) Error() string {
	tool := "process"
	if len(e.Argv) > 0 {
		tool = filepath.Base(e.Argv[0])
	}
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", tool, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", tool, e.Err, lastLine(e.Stderr))
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// stderrTailLines - сколько строк stderr сохраняется в ошибке.
const stderrTailLines = 20

// ExecRunner запускает процессы через exec.CommandContext.
// Процесс убивается при отмене контекста.
type ExecRunner struct {
	// Tee - если задан, stderr дублируется сюда в реальном времени.
	Tee io.Writer
}

// Run реализует Runner.
func (r ExecRunner) Run(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return errors.New("пустая команда")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var stderr bytes.Buffer
	if r.Tee != nil {
		cmd.Stderr = io.MultiWriter(&stderr, r.Tee)
	} else {
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	if err == nil {
		return nil
	}

	// Отмена важнее кода выхода убитого процесса
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}

	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}

	return &ExecError{
		Argv:     argv,
		ExitCode: code,
		Stderr:   tail(stderr.String(), stderrTailLines),
		Err:      err,
	}
}

// tail возвращает последние n непустых строк.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
