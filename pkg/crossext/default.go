package crossext

import "sync"

var (
	defaultMu     sync.RWMutex
	defaultReader *Reader
)

// SetDefault installs the reader that co-hosted modules obtain through
// Default. Only the host wiring should call it.
func SetDefault(r *Reader) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultReader = r
}

// Default returns the reader installed by SetDefault, or nil before wiring.
func Default() *Reader {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultReader
}
