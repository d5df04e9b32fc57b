// Package logging configures the process logger.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the logger. With verbose set, debug-level entries go to errOut.
// A non-empty logFile additionally appends to a size-rotated file, which is
// what keeps the one-shot CLI quiet by default without losing history.
func New(verbose bool, logFile string, errOut io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: false, FullTimestamp: true})

	switch {
	case verbose && logFile != "":
		logger.SetOutput(io.MultiWriter(errOut, rotated(logFile)))
		logger.SetLevel(logrus.DebugLevel)
	case verbose:
		logger.SetOutput(errOut)
		logger.SetLevel(logrus.DebugLevel)
	case logFile != "":
		logger.SetOutput(rotated(logFile))
		logger.SetLevel(logrus.DebugLevel)
	default:
		logger.SetOutput(io.Discard)
	}

	return logger
}

func rotated(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
}
