// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package genericconf

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/exp/slog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var globalFileLogger = &bufferedFileLogger{}

// bufferedFileLogger hands records to a rotating file on its own goroutine. Records arriving
// while the buffer is full are dropped so that logging never blocks the caller.
type bufferedFileLogger struct {
	mutex   sync.Mutex
	writer  *lumberjack.Logger
	records chan []byte
	done    chan struct{}
}

func (l *bufferedFileLogger) Write(p []byte) (int, error) {
	l.mutex.Lock()
	records := l.records
	l.mutex.Unlock()
	if records == nil {
		return len(p), nil
	}
	record := make([]byte, len(p))
	copy(record, p)
	select {
	case records <- record:
	default:
	}
	return len(p), nil
}

func (l *bufferedFileLogger) open(config *FileLoggingConfig, filename string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.writer = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		LocalTime:  config.LocalTime,
		Compress:   config.Compress,
	}
	records := make(chan []byte, config.BufSize)
	done := make(chan struct{})
	writer := l.writer
	go func() {
		defer close(done)
		for record := range records {
			_, _ = writer.Write(record)
		}
	}()
	l.records = records
	l.done = done
}

func (l *bufferedFileLogger) close() error {
	l.mutex.Lock()
	records, done, writer := l.records, l.done, l.writer
	l.records, l.done, l.writer = nil, nil, nil
	l.mutex.Unlock()
	if records == nil {
		return nil
	}
	close(records)
	<-done
	return writer.Close()
}

func ToSlogLevel(str string) (slog.Level, error) {
	switch strings.ToLower(str) {
	case "trace":
		return log.LevelTrace, nil
	case "debug":
		return log.LevelDebug, nil
	case "info":
		return log.LevelInfo, nil
	case "warn":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	case "crit":
		return log.LevelCrit, nil
	default:
		return log.LevelInfo, fmt.Errorf("invalid log level: %v", str)
	}
}

func HandlerFromLogType(logType string, output io.Writer) (slog.Handler, error) {
	switch logType {
	case "plaintext":
		return log.NewTerminalHandler(output, false), nil
	case "json":
		return log.JSONHandler(output), nil
	default:
		return nil, fmt.Errorf("invalid log type: %v", logType)
	}
}

// InitLog replaces the default logger. It is not safe to call concurrently.
func InitLog(logType string, logLevel string, fileLoggingConfig *FileLoggingConfig, pathResolver func(string) string) error {
	if err := globalFileLogger.close(); err != nil {
		return fmt.Errorf("failed to close file writer: %w", err)
	}
	output := io.Writer(os.Stderr)
	if fileLoggingConfig.Enable {
		globalFileLogger.open(fileLoggingConfig, pathResolver(fileLoggingConfig.File))
		output = io.MultiWriter(os.Stderr, globalFileLogger)
	}
	handler, err := HandlerFromLogType(logType, output)
	if err != nil {
		return fmt.Errorf("error parsing log type when creating handler: %w", err)
	}
	level, err := ToSlogLevel(logLevel)
	if err != nil {
		return fmt.Errorf("error parsing log level: %w", err)
	}
	glogger := log.NewGlogHandler(handler)
	glogger.Verbosity(level)
	log.SetDefault(log.NewLogger(glogger))
	return nil
}

// CloseFileLogger flushes buffered records to the log file.
func CloseFileLogger() error {
	return globalFileLogger.close()
}
