package watcher

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	DefaultDebounceDuration = 500 * time.Millisecond
	DefaultBufferSize       = 100
)

var (
	// События, за которыми мы следим
	WatchedEvents = fsnotify.Create | fsnotify.Write

	// Файловые паттерны, которые нужно игнорировать: недописанные и служебные файлы
	IgnoredPatterns = []string{
		":Zone.Identifier",
		".tmp",
		".part",
		".swp",
		"~",
	}
)
