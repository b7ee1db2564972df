// Package rlog is the client's logging shim: a thin wrapper over the
// standard log package with leveled prefixes and a package-global
// minimum level.
package rlog

import (
	"log"
	"sync/atomic"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var currentLevel int32 = int32(LevelInfo)

// SetLevel adjusts the minimum level that gets printed.
func SetLevel(l Level) {
	atomic.StoreInt32(&currentLevel, int32(l))
}

func enabled(l Level) bool {
	return int32(l) >= atomic.LoadInt32(&currentLevel)
}

func Debug(format string, v ...any) {
	if enabled(LevelDebug) {
		log.Printf("[DEBUG] "+format, v...)
	}
}

func Info(format string, v ...any) {
	if enabled(LevelInfo) {
		log.Printf("[INFO] "+format, v...)
	}
}

func Warn(format string, v ...any) {
	if enabled(LevelWarn) {
		log.Printf("[WARN] "+format, v...)
	}
}

func Error(format string, v ...any) {
	log.Printf("[ERROR] "+format, v...)
}
