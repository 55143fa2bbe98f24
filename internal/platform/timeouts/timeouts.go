// Package timeouts defines the timeout constants shared by the sync node.
package timeouts

import "time"

// StoreDial caps the wait when opening a connection to the shared store.
const StoreDial = 2 * time.Second

// StoreCommand caps a single store round-trip, script evaluations included.
const StoreCommand = 3 * time.Second

// StorePing bounds one reachability probe issued by the reconnect monitor.
const StorePing = time.Second

// Shutdown limits how long servers and exporters wait during graceful shutdown.
const Shutdown = 5 * time.Second
