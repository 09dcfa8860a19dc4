package watcher

import (
	"log/slog"
	"time"
)

// FileSender отправляет файл с диска в сеть
type FileSender interface {
	SendFilePath(path string) error
}

// Config содержит настройки для OutboxWatcher
type Config struct {
	DebounceDuration time.Duration
	BufferSize       int
	IgnorePatterns   []string
	Logger           *slog.Logger
}
