package logger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxSizeMB  = 100
	defaultMaxAgeDays = 7
	defaultMaxBackups = 3
)

// RotationConfig represents log rotation configuration
type RotationConfig struct {
	MaxSize    string `json:"max_size" mapstructure:"max_size"`       // e.g., "100MB", "1GB"
	MaxAge     string `json:"max_age" mapstructure:"max_age"`         // e.g., "7d", "24h"
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"` // number of backup files
	Compress   bool   `json:"compress" mapstructure:"compress"`       // compress old logs
}

// DefaultRotationConfig returns the rotation policy used when none is configured.
func DefaultRotationConfig() *RotationConfig {
	return &RotationConfig{
		MaxSize:    "100MB",
		MaxAge:     "7d",
		MaxBackups: defaultMaxBackups,
		Compress:   true,
	}
}

// newFileWriter returns a lumberjack writer for filename. Size and age are
// rounded up to lumberjack's megabyte and day granularity.
func newFileWriter(filename string, r *RotationConfig) *lumberjack.Logger {
	if r == nil {
		r = DefaultRotationConfig()
	}
	maxSize := defaultMaxSizeMB
	if n, err := parseSize(r.MaxSize); err == nil && n > 0 {
		maxSize = int((n + (1<<20 - 1)) >> 20)
	}
	maxAge := defaultMaxAgeDays
	if d, err := parseDuration(r.MaxAge); err == nil && d > 0 {
		maxAge = int((d + 24*time.Hour - 1) / (24 * time.Hour))
	}
	return &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSize,
		MaxAge:     maxAge,
		MaxBackups: r.MaxBackups,
		Compress:   r.Compress,
	}
}

// Validate validates rotation configuration
func (r *RotationConfig) Validate() error {
	if r.MaxSize != "" {
		if _, err := parseSize(r.MaxSize); err != nil {
			return fmt.Errorf("invalid max_size: %v", err)
		}
	}

	if r.MaxAge != "" {
		if _, err := parseDuration(r.MaxAge); err != nil {
			return fmt.Errorf("invalid max_age: %v", err)
		}
	}

	if r.MaxBackups < 0 {
		return fmt.Errorf("max_backups must be non-negative")
	}

	return nil
}

// splitNumber separates a leading decimal number from its unit suffix.
func splitNumber(s string) (int64, string, error) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, "", fmt.Errorf("no number found in %q", s)
	}
	num, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse number: %v", err)
	}
	return num, strings.TrimSpace(s[i:]), nil
}

// parseSize parses size string (e.g., "100MB", "1GB") to bytes
func parseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(sizeStr)
	if sizeStr == "" {
		return 0, nil
	}

	num, unit, err := splitNumber(sizeStr)
	if err != nil {
		return 0, err
	}

	switch strings.ToUpper(unit) {
	case "B", "":
		return num, nil
	case "KB":
		return num * 1024, nil
	case "MB":
		return num * 1024 * 1024, nil
	case "GB":
		return num * 1024 * 1024 * 1024, nil
	default:
		return 0, fmt.Errorf("unknown unit: %s", unit)
	}
}

// parseDuration parses duration string (e.g., "7d", "24h", "30m") to time.Duration
func parseDuration(durationStr string) (time.Duration, error) {
	durationStr = strings.TrimSpace(durationStr)
	if durationStr == "" {
		return 0, nil
	}

	num, unit, err := splitNumber(durationStr)
	if err != nil {
		return 0, err
	}

	switch strings.ToLower(unit) {
	case "s", "sec", "second", "seconds":
		return time.Duration(num) * time.Second, nil
	case "m", "min", "minute", "minutes":
		return time.Duration(num) * time.Minute, nil
	case "h", "hour", "hours":
		return time.Duration(num) * time.Hour, nil
	case "d", "day", "days":
		return time.Duration(num) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown unit: %s", unit)
	}
}
