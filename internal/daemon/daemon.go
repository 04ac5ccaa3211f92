// Package daemon runs loops as a long-lived process controlled over a Unix
// domain socket. It owns the skill registry (hot-reloaded on directory
// changes), the run host, and the notification bus.
package daemon

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/loopline/loopline/internal/engine"
	"github.com/loopline/loopline/internal/events"
	"github.com/loopline/loopline/internal/lock"
	"github.com/loopline/loopline/internal/notify"
	"github.com/loopline/loopline/internal/registry"
	"github.com/loopline/loopline/internal/uds"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Options configures a daemon. The zero value takes sensible defaults.
type Options struct {
	LogLevel      LogLevel
	CacheTTL      time.Duration
	Debounce      time.Duration
	Notifications bool
}

// Daemon is the loopline serve process.
type Daemon struct {
	baseDir  string
	opts     Options
	logger   *log.Logger
	logFile  io.Closer
	logLevel LogLevel

	fileLock *lock.FileLock
	server   *uds.Server
	bus      *events.Bus

	skills  *registry.DirRegistry
	cache   *registry.CachedRegistry
	watcher *registry.Watcher

	host   *engine.Host
	detach func()

	shutdown sync.Once
	stopped  chan struct{}
}

// New creates a daemon rooted at a .loopline/ workspace directory.
func New(baseDir string, opts Options) (*Daemon, error) {
	logPath := filepath.Join(baseDir, "logs", "daemon.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open daemon log: %w", err)
	}
	return newDaemon(baseDir, opts, logFile, logFile)
}

// newDaemon is the internal constructor for testing.
func newDaemon(baseDir string, opts Options, w io.Writer, closer io.Closer) (*Daemon, error) {
	skills, err := registry.NewDirRegistry(filepath.Join(baseDir, "skills"))
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, fmt.Errorf("load skills: %w", err)
	}

	logger := log.New(w, "", log.LstdFlags)
	d := &Daemon{
		baseDir:  baseDir,
		opts:     opts,
		logger:   logger,
		logFile:  closer,
		logLevel: opts.LogLevel,
		fileLock: lock.NewFileLock(filepath.Join(baseDir, "daemon.lock")),
		server:   uds.NewServer(filepath.Join(baseDir, uds.DefaultSocketName), logger),
		bus:      events.NewBus(0),
		skills:   skills,
		stopped:  make(chan struct{}),
	}
	d.cache = registry.NewCachedRegistry(skills, opts.CacheTTL)
	d.host = engine.NewHost(d.cache, d.bus, logger)
	return d, nil
}

// Start acquires the daemon lock and begins serving. It does not block.
func (d *Daemon) Start() error {
	if err := d.fileLock.TryLock(); err != nil {
		return fmt.Errorf("daemon lock: %w", err)
	}
	d.log(LogLevelInfo, "daemon starting pid=%d", os.Getpid())

	watcher, err := registry.NewWatcher(d.skills, d.cache, d.opts.Debounce, d.logger)
	if err != nil {
		d.fileLock.Unlock()
		return err
	}
	d.watcher = watcher

	if d.opts.Notifications {
		d.detach = notify.Attach(d.bus, nil)
	}

	d.registerHandlers()
	if err := d.server.Start(); err != nil {
		d.cleanup()
		return fmt.Errorf("start UDS server: %w", err)
	}

	d.log(LogLevelInfo, "listening on %s (%d skills loaded)",
		filepath.Join(d.baseDir, uds.DefaultSocketName), d.skills.Len())
	return nil
}

// Run starts the daemon and blocks until a shutdown signal arrives.
func (d *Daemon) Run() error {
	if err := d.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		d.log(LogLevelInfo, "received signal=%s, shutting down", sig)
		// second signal forces exit
		go func() {
			<-sigCh
			d.log(LogLevelWarn, "received second signal, forcing exit")
			os.Exit(1)
		}()
	case <-d.stopped:
	}

	d.Shutdown()
	return nil
}

// Host exposes the run host for in-process callers and tests.
func (d *Daemon) Host() *engine.Host {
	return d.host
}

// Bus exposes the notification bus.
func (d *Daemon) Bus() *events.Bus {
	return d.bus
}

// Shutdown stops serving and releases everything. Idempotent.
func (d *Daemon) Shutdown() {
	d.shutdown.Do(func() {
		d.log(LogLevelInfo, "shutdown started")
		close(d.stopped)

		if d.server != nil {
			d.server.Stop()
		}
		if d.watcher != nil {
			d.watcher.Close()
		}
		if d.detach != nil {
			d.detach()
		}
		d.bus.Close()
		d.cleanup()
		d.log(LogLevelInfo, "daemon stopped")
	})
}

func (d *Daemon) cleanup() {
	os.Remove(filepath.Join(d.baseDir, uds.DefaultSocketName))
	d.fileLock.Unlock()
	if d.logFile != nil {
		d.logFile.Close()
	}
}

func (d *Daemon) log(level LogLevel, format string, args ...any) {
	if level < d.logLevel {
		return
	}
	prefix := "INFO"
	switch level {
	case LogLevelDebug:
		prefix = "DEBUG"
	case LogLevelWarn:
		prefix = "WARN"
	case LogLevelError:
		prefix = "ERROR"
	}
	d.logger.Printf("[%s] %s", prefix, fmt.Sprintf(format, args...))
}
