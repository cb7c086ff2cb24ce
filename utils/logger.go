package utils

import (
	"os"

	"github.com/sirupsen/logrus"
)

var (
	InfoLogger  *logrus.Logger
	ErrorLogger *logrus.Logger
)

func InitLogger() {
	InfoLogger = logrus.New()
	ErrorLogger = logrus.New()

	// InfoLogger ke stdout, ErrorLogger ke stderr
	InfoLogger.SetOutput(os.Stdout)
	InfoLogger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	ErrorLogger.SetOutput(os.Stderr)
	ErrorLogger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	InfoLogger.SetLevel(logrus.InfoLevel)
	ErrorLogger.SetLevel(logrus.WarnLevel)
}

// SetDebug lowers the info logger to debug level.
func SetDebug(debug bool) {
	if InfoLogger == nil {
		InitLogger()
	}
	if debug {
		InfoLogger.SetLevel(logrus.DebugLevel)
	}
}

// Info returns an entry on the info logger, initializing the loggers
// when a component is used before main or a test has called InitLogger.
func Info(fields logrus.Fields) *logrus.Entry {
	if InfoLogger == nil {
		InitLogger()
	}
	return InfoLogger.WithFields(fields)
}

// Error is Info for the error logger.
func Error(fields logrus.Fields) *logrus.Entry {
	if ErrorLogger == nil {
		InitLogger()
	}
	return ErrorLogger.WithFields(fields)
}
