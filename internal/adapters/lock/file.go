package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"tg-meme-pulse/internal/domain"
)

// File блокирует каталог проекта через flock(2) на файле <root>/<project>/.lock.
type File struct {
	root string
}

var _ domain.Locker = (*File)(nil)

// NewFile создаёт файловую блокировку в корне данных.
func NewFile(root string) *File {
	return &File{root: root}
}

// Lock берёт неблокирующую эксклюзивную блокировку.
func (l *File) Lock(ctx context.Context, project string) (func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := filepath.Join(l.root, project)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("каталог проекта: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, ".lock"), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("файл блокировки: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, project)
		}
		return nil, fmt.Errorf("flock: %w", err)
	}
	return func() error {
		unlockErr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
		closeErr := f.Close()
		return errors.Join(unlockErr, closeErr)
	}, nil
}
