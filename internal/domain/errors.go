package domain

import "errors"

// ErrNotFound возвращается хранилищами, если запрошенных данных нет.
var ErrNotFound = errors.New("не найдено")

// ErrLocked возвращается, если каталог проекта уже занят другим процессом.
var ErrLocked = errors.New("проект уже обрабатывается другим процессом")
