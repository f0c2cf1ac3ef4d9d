// Package exchange maintains the registry of venue client drivers.
//
// Drivers register themselves in an init function, database/sql style:
//
//	func init() {
//		exchange.Register("binance", newBinanceClient)
//	}
package exchange

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/YoshitsuguKoike/candlelake/internal/ingest"
)

// Driver builds a client for one market category on a venue.
type Driver func(market string) (ingest.MarketClient, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a driver available under the given exchange name.
// Registering twice for the same name panics.
func Register(name string, driver Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	name = strings.ToLower(name)
	if driver == nil {
		panic("exchange: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("exchange: Register called twice for driver " + name)
	}
	drivers[name] = driver
}

// New builds a client for the named exchange and market category.
func New(name, market string) (ingest.MarketClient, error) {
	driversMu.RLock()
	driver, ok := drivers[strings.ToLower(name)]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown exchange %q (registered: %s)", name, strings.Join(Names(), ", "))
	}
	return driver(strings.ToLower(market))
}

// Names lists the registered exchange names, sorted.
func Names() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
