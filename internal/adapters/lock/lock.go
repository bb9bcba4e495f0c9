package lock

import "tg-meme-pulse/internal/domain"

// ErrLocked возвращается, если каталог проекта уже занят другим процессом.
var ErrLocked = domain.ErrLocked
