// Package storage persists the little state the monitor needs across restarts:
//   - display bindings (which channel carries which name)
//   - an append-only audit trail of display calls
package storage
