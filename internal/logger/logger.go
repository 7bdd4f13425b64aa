package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

var (
	// До Init оба логгера пишут в stderr
	InfoLog   = newLogger(os.Stderr)
	ErrorLog  = newLogger(os.Stderr)
	infoFile  *os.File
	errorFile *os.File
)

func newLogger(out *os.File) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Init инициализирует логгеры для записи в файлы
func Init(logsPath string) error {
	// Создать директорию для логов
	if err := os.MkdirAll(logsPath, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	// Открыть info.log (append mode)
	infoPath := filepath.Join(logsPath, "info.log")
	var err error
	infoFile, err = os.OpenFile(infoPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create info.log: %w", err)
	}

	// Открыть error.log (append mode)
	errorPath := filepath.Join(logsPath, "error.log")
	errorFile, err = os.OpenFile(errorPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		infoFile.Close()
		return fmt.Errorf("failed to create error.log: %w", err)
	}

	InfoLog.SetOutput(infoFile)
	ErrorLog.SetOutput(errorFile)

	InfoLog.WithFields(logrus.Fields{
		"info_log":  infoPath,
		"error_log": errorPath,
	}).Info("Logger initialized")

	return nil
}

// Cleanup закрывает файлы логов и возвращает вывод в stderr
func Cleanup() error {
	var errInfo, errError error

	InfoLog.SetOutput(os.Stderr)
	ErrorLog.SetOutput(os.Stderr)

	if infoFile != nil {
		infoFile.Sync()
		errInfo = infoFile.Close()
		infoFile = nil
	}

	if errorFile != nil {
		errorFile.Sync()
		errError = errorFile.Close()
		errorFile = nil
	}

	if errInfo != nil {
		return errInfo
	}
	return errError
}

type ctxKey int

const ctxKeyLog ctxKey = iota

// WithLogEntry кладет запись логгера в контекст
func WithLogEntry(ctx context.Context, e *logrus.Entry) context.Context {
	return context.WithValue(ctx, ctxKeyLog, e)
}

// Entry достает запись логгера из контекста; без нее — запись InfoLog
func Entry(ctx context.Context) *logrus.Entry {
	if e, ok := ctx.Value(ctxKeyLog).(*logrus.Entry); ok {
		return e
	}
	return logrus.NewEntry(InfoLog)
}
