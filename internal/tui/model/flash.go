package model

import (
	"sync"
	"time"
)

// FlashLevel distinguishes notices from errors.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashError
)

// Flash holds a transient notification.
type Flash struct {
	mu      sync.RWMutex
	message string
	level   FlashLevel
	expires time.Time
	now     func() time.Time
}

// Set stores a notice that expires after d.
func (f *Flash) Set(msg string, d time.Duration) {
	f.set(msg, FlashInfo, d)
}

// Error stores an error notice that expires after d.
func (f *Flash) Error(msg string, d time.Duration) {
	f.set(msg, FlashError, d)
}

func (f *Flash) set(msg string, level FlashLevel, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = msg
	f.level = level
	f.expires = f.clock()().Add(d)
}

// Get returns the current notice and its level, or "" once expired.
func (f *Flash) Get() (string, FlashLevel) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.clock()().After(f.expires) {
		return "", FlashInfo
	}
	return f.message, f.level
}

func (f *Flash) clock() func() time.Time {
	if f.now != nil {
		return f.now
	}
	return time.Now
}
