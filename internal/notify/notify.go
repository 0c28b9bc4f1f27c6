// Package notify provides the cross-process change notification bus.
//
// Sibling instances of the application (separate windows or processes on one
// machine) use the bus to learn that a cache key changed without polling the
// remote store. Delivery is best-effort and at-most-once per receiver;
// messages for the same key arrive at a given receiver in send order, but no
// ordering is guaranteed across different keys.
//
// The bus carries UI-freshness hints only. Sync coordination never runs over
// it: each process keeps its own sync state and races for the remote document
// on its own.
//
// Backends:
//   - Noop for single-instance deployments
//   - Broker for in-process fan-out (tests, embedded multi-window hosts)
//   - Hub/WSBus over websockets for multi-process deployments
//   - Spool over a shared watched directory
package notify

// Handler receives the serialized value broadcast for a subscribed key.
type Handler func(value string)

// Notifier is the publish/subscribe contract between sibling instances.
type Notifier interface {
	// Broadcast publishes a key change to all other live subscribers of the
	// same key. The sender's own subscriptions are not invoked.
	Broadcast(key, value string) error

	// Subscribe registers a handler for the key and returns a function that
	// removes the registration. A handler may be invoked from the notifier's
	// delivery goroutine.
	Subscribe(key string, fn Handler) (unsubscribe func())

	// Close releases the notifier's resources. Broadcast and Subscribe are
	// no-ops after Close.
	Close() error
}

// Noop is a Notifier that delivers nothing. It serves single-instance
// deployments where there is nobody to notify.
type Noop struct{}

// Broadcast implements Notifier.
func (Noop) Broadcast(key, value string) error { return nil }

// Subscribe implements Notifier.
func (Noop) Subscribe(key string, fn Handler) func() { return func() {} }

// Close implements Notifier.
func (Noop) Close() error { return nil }
