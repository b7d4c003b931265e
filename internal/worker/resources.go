package worker

import (
	"errors"
	"fmt"

	"github.com/c2h5oh/datasize"
	"github.com/shirou/gopsutil/v3/disk"
)

// ErrLowDisk возвращается, если свободного места меньше порога.
var ErrLowDisk = errors.New("недостаточно свободного места на диске")

// DiskGuard проверяет свободное место на выходной файловой системе перед каждым исходником.
type DiskGuard struct {
	// Path - любая директория на выходной ФС.
	Path string

	// MinFree - минимальный запас свободного места (0 = не проверять).
	MinFree datasize.ByteSize

	// free - источник свободного места. Подменяется в тестах.
	free func(path string) (uint64, error)
}

// NewDiskGuard создаёт проверку свободного места.
func NewDiskGuard(path string, minFree datasize.ByteSize) *DiskGuard {
	return &DiskGuard{
		Path:    path,
		MinFree: minFree,
		free:    diskFree,
	}
}

// IsEnabled возвращает true если проверка включена.
func (g *DiskGuard) IsEnabled() bool {
	return g != nil && g.MinFree > 0
}

// Check возвращает ErrLowDisk, если места меньше порога.
// Прочие ошибки означают, что свободное место узнать не удалось.
func (g *DiskGuard) Check() error {
	if !g.IsEnabled() {
		return nil
	}

	free, err := g.free(g.Path)
	if err != nil {
		return fmt.Errorf("не удалось получить свободное место для %s: %w", g.Path, err)
	}

	if free < g.MinFree.Bytes() {
		return fmt.Errorf("%w: свободно %s, требуется %s",
			ErrLowDisk, datasize.ByteSize(free).HumanReadable(), g.MinFree.HumanReadable())
	}

	return nil
}

func diskFree(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

/*
Возможные расширения:
- Оценивать нужное место по размеру исходника и числу вариантов
- Ждать освобождения места вместо пропуска
*/
