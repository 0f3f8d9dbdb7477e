package utils

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"fbscrape/internal/config"
)

// NewLogger builds the logger every binary passes down to its components.
// When cfg.File is set, output also goes to a size-rotated file.
func NewLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetOutput(os.Stdout)
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			logger.Warnf("Log file disabled: %v", err)
			return logger
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
		}))
	}

	return logger
}

// SetupLogger returns a stdout logger at debug or info level for binaries
// that run without a config file.
func SetupLogger(debug bool) *logrus.Logger {
	level := "info"
	if debug {
		level = "debug"
	}
	return NewLogger(config.LoggingConfig{Level: level})
}
