package sessionstore

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Backend names accepted by Config.SessionBackend.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRemote = "remote"
)

// New selects and constructs the Session Store backend once at startup, per
// the spec's "no request-time fallback" invariant. databaseURL is required
// when backend is "remote"; filePath is required when backend is "file".
func New(ctx context.Context, backend, databaseURL, filePath string, inactivityTimeout time.Duration) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendMemory:
		return NewMemStore(inactivityTimeout), nil
	case BackendFile:
		if strings.TrimSpace(filePath) == "" {
			return nil, fmt.Errorf("sessionstore: file backend requires a file path")
		}
		return NewFileStore(filePath, inactivityTimeout)
	case BackendRemote:
		if strings.TrimSpace(databaseURL) == "" {
			return nil, fmt.Errorf("sessionstore: remote backend requires a database URL")
		}
		return NewPgStore(ctx, databaseURL)
	default:
		return nil, fmt.Errorf("sessionstore: unknown backend %q", backend)
	}
}
