// Package terminal serializes all access to a broker terminal session
// behind a single worker goroutine, so each logged-in session is only ever
// touched by one agent and order submissions are strictly ordered.
package terminal

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alejandrodnm/tradecopier/internal/ports"
)

// SessionConfig selects which terminal a driver should open.
type SessionConfig struct {
	// Path to the installed terminal executable; empty lets the driver pick.
	Path string
	// AccountNumber is the login expected to be authorized in the terminal.
	AccountNumber int64
}

// Driver opens raw broker sessions. Concrete broker bindings register
// themselves at init time, the same way database/sql drivers do, so this
// package carries no platform dependency.
type Driver interface {
	Open(cfg SessionConfig) (ports.TerminalSession, error)
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a driver available under the given name. Registering twice
// under the same name panics.
func Register(name string, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if d == nil {
		panic("terminal.Register: nil driver")
	}
	if _, dup := drivers[name]; dup {
		panic("terminal.Register: duplicate driver " + name)
	}
	drivers[name] = d
}

// Open starts a session through the named driver.
func Open(name string, cfg SessionConfig) (ports.TerminalSession, error) {
	driversMu.RLock()
	d, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("terminal.Open: unknown driver %q (registered: %v)", name, driverNames())
	}
	session, err := d.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("terminal.Open: driver %q: %w", name, err)
	}
	return session, nil
}

func driverNames() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
