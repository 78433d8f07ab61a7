package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// FileHandler 新文件处理函数
type FileHandler func(ctx context.Context, filePath string) error

// FileWatcher 监控入站目录，新出现的包文件交给 handler
// （通常是发布到扫描队列）。
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	watchDir string
	pattern  string // 文件匹配模式，如 "*.apk"
	handler  FileHandler
	logger   *logrus.Logger
	debounce time.Duration

	mu         sync.Mutex
	processing map[string]bool
	stopChan   chan struct{}
}

// NewFileWatcher 创建监控器，目录不存在时自动创建
func NewFileWatcher(watchDir, pattern string, handler FileHandler, logger *logrus.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := os.MkdirAll(watchDir, 0755); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to create watch directory: %w", err)
	}
	if err := watcher.Add(watchDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to add watch directory: %w", err)
	}

	fw := &FileWatcher{
		watcher:    watcher,
		watchDir:   watchDir,
		pattern:    pattern,
		handler:    handler,
		logger:     logger,
		debounce:   2 * time.Second,
		processing: make(map[string]bool),
		stopChan:   make(chan struct{}),
	}

	logger.WithFields(logrus.Fields{
		"watch_dir": watchDir,
		"pattern":   pattern,
	}).Info("File watcher created")

	return fw, nil
}

// Start 启动事件循环。启动时不回扫已有文件，
// 服务重启不会把处理过的包再投递一遍。
func (fw *FileWatcher) Start(ctx context.Context) error {
	go fw.eventLoop(ctx)
	fw.logger.Info("File watcher started")
	return nil
}

func (fw *FileWatcher) eventLoop(ctx context.Context) {
	debounceTimer := make(map[string]*time.Timer)

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.stopChan:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				fw.logger.Warn("Watcher events channel closed")
				return
			}

			if event.Op&fsnotify.Create != fsnotify.Create &&
				event.Op&fsnotify.Write != fsnotify.Write {
				continue
			}
			fileName := filepath.Base(event.Name)
			if !fw.matchPattern(fileName) {
				continue
			}

			fw.logger.WithFields(logrus.Fields{
				"event": event.Op.String(),
				"file":  fileName,
			}).Debug("File event detected")

			// 防抖：同一文件短时间内的多次事件只处理一次
			name := event.Name
			fw.mu.Lock()
			if timer, exists := debounceTimer[name]; exists {
				timer.Stop()
			}
			debounceTimer[name] = time.AfterFunc(fw.debounce, func() {
				fw.mu.Lock()
				delete(debounceTimer, name)
				fw.mu.Unlock()
				fw.handleFile(ctx, name)
			})
			fw.mu.Unlock()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.WithError(err).Error("Watcher error")
		}
	}
}

func (fw *FileWatcher) handleFile(ctx context.Context, filePath string) {
	fw.mu.Lock()
	if fw.processing[filePath] {
		fw.mu.Unlock()
		return
	}
	fw.processing[filePath] = true
	fw.mu.Unlock()
	defer func() {
		fw.mu.Lock()
		delete(fw.processing, filePath)
		fw.mu.Unlock()
	}()

	if err := fw.waitForFileReady(filePath); err != nil {
		fw.logger.WithError(err).WithField("file", filePath).Error("File not ready")
		return
	}

	fw.logger.WithField("file", filePath).Info("Processing inbound file")
	if err := fw.handler(ctx, filePath); err != nil {
		fw.logger.WithError(err).WithField("file", filePath).Error("Failed to process file")
	}
}

// waitForFileReady 等待写入完成：文件大小在两次采样间稳定
func (fw *FileWatcher) waitForFileReady(filePath string) error {
	const maxAttempts = 10
	for i := 0; i < maxAttempts; i++ {
		info1, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("file does not exist")
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		time.Sleep(500 * time.Millisecond)

		info2, err := os.Stat(filePath)
		if err != nil {
			return err
		}
		if info1.Size() == info2.Size() && info1.Size() > 0 {
			return nil
		}
	}
	return fmt.Errorf("file not ready after %d attempts", maxAttempts)
}

func (fw *FileWatcher) matchPattern(fileName string) bool {
	if fw.pattern == "" || fw.pattern == "*" {
		return true
	}
	if strings.HasPrefix(fw.pattern, "*.") {
		ext := strings.TrimPrefix(fw.pattern, "*")
		return strings.HasSuffix(strings.ToLower(fileName), strings.ToLower(ext))
	}
	return fileName == fw.pattern
}

// Stop 停止监控
func (fw *FileWatcher) Stop() error {
	close(fw.stopChan)
	if fw.watcher != nil {
		return fw.watcher.Close()
	}
	return nil
}
