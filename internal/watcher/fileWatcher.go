// Package watcher sends every file that appears in an outbox directory.
// Bursts of write events for one file are collapsed by a debouncer.
package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"lanchat/internal/util/logger/handlers/slogdiscard"
	"lanchat/internal/util/logger/sl"
)

type OutboxWatcher struct {
	watcher   *fsnotify.Watcher
	sender    FileSender
	errors    chan error
	config    Config
	log       *slog.Logger
	debouncer *Debouncer
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
}

func New(sender FileSender, config Config) (*OutboxWatcher, error) {
	if config.DebounceDuration == 0 {
		config.DebounceDuration = DefaultDebounceDuration
	}
	if config.BufferSize == 0 {
		config.BufferSize = DefaultBufferSize
	}
	if config.IgnorePatterns == nil {
		config.IgnorePatterns = IgnoredPatterns
	}
	if config.Logger == nil {
		config.Logger = slogdiscard.NewDiscardLogger()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	fw := &OutboxWatcher{
		watcher:   watcher,
		sender:    sender,
		errors:    make(chan error, config.BufferSize),
		config:    config,
		log:       config.Logger.With(slog.String("component", "outbox")),
		debouncer: NewDebouncer(config.DebounceDuration),
		stopChan:  make(chan struct{}),
	}

	fw.wg.Add(1)
	go fw.run()

	return fw, nil
}

// Watch добавляет директорию (рекурсивно) или отдельный файл
func (fw *OutboxWatcher) Watch(path string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return ErrWatcherClosed
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}

	if info.IsDir() {
		return filepath.Walk(path, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				if err := fw.watcher.Add(path); err != nil {
					return fmt.Errorf("failed to watch directory %s: %w", path, err)
				}
			}
			return nil
		})
	}

	if err := fw.watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch file %s: %w", path, err)
	}
	return nil
}

func (fw *OutboxWatcher) run() {
	defer fw.wg.Done()
	defer close(fw.errors)

	for {
		select {
		case <-fw.stopChan:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if fw.shouldProcessEvent(event) {
				fw.processEvent(event)
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.handleError(err)
		}
	}
}

func (fw *OutboxWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	// Проверяем, что это событие, которое нас интересует
	if event.Op&WatchedEvents == 0 {
		return false
	}

	for _, pattern := range fw.config.IgnorePatterns {
		if strings.Contains(event.Name, pattern) {
			fw.log.Debug("ignoring file",
				slog.String("path", event.Name),
				slog.String("pattern", pattern),
			)
			return false
		}
	}

	return true
}

func (fw *OutboxWatcher) processEvent(event fsnotify.Event) {
	const op = "watcher.OutboxWatcher.processEvent"

	path := event.Name
	fw.debouncer.Debounce(path, func() {
		info, err := os.Stat(path)
		if err != nil {
			// файл успели удалить или переименовать
			return
		}
		if info.IsDir() {
			if event.Op&fsnotify.Create != 0 {
				if err := fw.Watch(path); err != nil {
					fw.handleError(err)
				}
			}
			return
		}

		if err := fw.sender.SendFilePath(path); err != nil {
			fw.handleError(fmt.Errorf("failed to send file %s: %w", path, err))
			return
		}
		fw.log.Info("outbox file sent", slog.String("op", op), slog.String("path", path))
	})
}

func (fw *OutboxWatcher) handleError(err error) {
	fw.log.Warn("outbox error", sl.Err(err))

	fw.mu.RLock()
	defer fw.mu.RUnlock()
	if fw.closed {
		return
	}

	select {
	case fw.errors <- err:
	default:
		fw.log.Warn("error buffer full, dropping error")
	}
}

func (fw *OutboxWatcher) Close() error {
	fw.mu.Lock()
	if fw.closed {
		fw.mu.Unlock()
		return nil
	}
	fw.closed = true
	fw.mu.Unlock()

	close(fw.stopChan)
	fw.wg.Wait()
	fw.debouncer.Stop()

	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// Errors returns the error channel. It is not closed by Close.
func (fw *OutboxWatcher) Errors() <-chan error {
	return fw.errors
}
