// internal/logger/logger.go
package logger

import (
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Logger configuration
type Config struct {
	LogsDirectory string // empty = console only
	LogFileFormat string // must contain one %s for the date
	TimeZone      string
	Debug         bool
}

var (
	initialized  int32 // 0 = not initialized, 1 = initialized
	debugEnabled int32
	logger       *log.Logger
	logFile      *os.File
	timeZone     = time.Local
	logFilePath  string
	mu           sync.Mutex // protect against concurrent initialization
)

// SetupLogger initializes the logger with console and, when a logs
// directory is configured, file output.
func SetupLogger(config Config) error {
	mu.Lock()
	defer mu.Unlock()

	if atomic.LoadInt32(&initialized) == 1 {
		return fmt.Errorf("logger already initialized")
	}

	if config.TimeZone == "" {
		config.TimeZone = "Europe/Berlin"
	}
	loc, err := time.LoadLocation(config.TimeZone)
	if err != nil {
		return fmt.Errorf("load time zone %q: %w", config.TimeZone, err)
	}
	timeZone = loc

	var out io.Writer = os.Stdout
	if config.LogsDirectory != "" {
		if err := os.MkdirAll(config.LogsDirectory, 0o775); err != nil {
			return fmt.Errorf("create logs directory %q: %w", config.LogsDirectory, err)
		}

		format := config.LogFileFormat
		if format == "" {
			format = "eventsite_%s.log"
		}
		name := fmt.Sprintf(format, time.Now().In(loc).Format("2006-01-02"))
		if filepath.IsAbs(name) {
			logFilePath = name
		} else {
			logFilePath = filepath.Join(config.LogsDirectory, name)
		}

		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
		if err != nil {
			return fmt.Errorf("open log file %q: %w", logFilePath, err)
		}
		logFile = f
		out = io.MultiWriter(os.Stdout, f)
	}

	logger = log.New(out, "", 0)
	if config.Debug {
		atomic.StoreInt32(&debugEnabled, 1)
	}
	atomic.StoreInt32(&initialized, 1)

	if logFilePath != "" {
		LogInfo("Logger initialized, writing to %s", logFilePath)
	} else {
		LogInfo("Logger initialized, console only")
	}
	return nil
}

// Close flushes and releases the log file, returning the package to its
// uninitialized console fallback.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	atomic.StoreInt32(&initialized, 0)
	atomic.StoreInt32(&debugEnabled, 0)
	logFilePath = ""
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

func GetLogFilePath() string {
	return logFilePath
}

func IsInitialized() bool {
	return atomic.LoadInt32(&initialized) == 1
}

func LogMessage(level string, message string, v ...interface{}) {
	if !IsInitialized() {
		log.Printf("[%s] %s", level, fmt.Sprintf(message, v...))
		return
	}

	_, file, line, _ := runtime.Caller(2)
	fileName := filepath.Base(file)
	formattedMsg := fmt.Sprintf(message, v...)
	timestamp := time.Now().In(timeZone).Format("2006-01-02 15:04:05 MST")

	logger.Printf("[%s] %s %s:%d - %s", level, timestamp, fileName, line, formattedMsg)
}

func LogDebug(message string, v ...interface{}) {
	if atomic.LoadInt32(&debugEnabled) == 1 {
		LogMessage("DEBUG", message, v...)
	}
}
func LogInfo(message string, v ...interface{})  { LogMessage("INFO", message, v...) }
func LogWarn(message string, v ...interface{})  { LogMessage("WARN", message, v...) }
func LogError(message string, v ...interface{}) { LogMessage("ERROR", message, v...) }
func LogFatal(message string, v ...interface{}) {
	LogMessage("FATAL", message, v...)
	os.Exit(1)
}

func LogHTTPRequest(r *http.Request) {
	LogInfo("HTTP %s %s from %s", r.Method, r.URL.Path, GetClientIP(r))
}

func LogHTTPError(r *http.Request, status int, err error) {
	LogError("HTTP %d error for %s %s from %s: %v", status, r.Method, r.URL.Path, GetClientIP(r), err)
}

func GetClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
