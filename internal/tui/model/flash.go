package model

import (
	"sync"
	"time"
)

const errorFlash = 5 * time.Second

// Flash holds the transient notification shown in the status bar.
type Flash struct {
	mu      sync.RWMutex
	message string
	expires time.Time
}

// Set stores a flash message that expires after the given duration.
func (f *Flash) Set(msg string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = msg
	f.expires = time.Now().Add(d)
}

// Err flashes "what: err".
func (f *Flash) Err(what string, err error) {
	f.Set(what+": "+err.Error(), errorFlash)
}

// Get returns the current flash message, or empty if expired.
func (f *Flash) Get() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if time.Now().After(f.expires) {
		return ""
	}
	return f.message
}
