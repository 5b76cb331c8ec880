package storage

// Store names identify the key-value buckets used by the agent.
type Store string

const (
	AgentStatusStore Store = "agent_status" // Registration status and report bookkeeping.
	ConfigStore      Store = "config"       // Plugin configuration cache.
)

func (storeType Store) String() string {
	return string(storeType)
}

// Getter is an interface for getting data from a key/value store.
type Getter interface {
	// Get retrieves the value for a key.
	// Returns a nil value if the key does not exist.
	Get(key []byte) (value []byte, err error)
}

// Setter is an interface for setting data in a key/value store.
type Setter interface {
	// Set sets the value for a key.
	// If the key exists then its previous value will be overwritten.
	Set(key, value []byte) error
}

// Deleter is an interface for deleting data in a key/value store.
type Deleter interface {
	// Delete removes keys. Missing keys are ignored.
	Delete(keys ...[]byte) error
}

// Iterator is an interface for iterating data in a key/value store.
type Iterator interface {
	// ForEach executes a function for each key/value pair in a store.
	// The provided function must not modify the store.
	ForEach(fn func(k, v []byte) error) error
}

// GetterSetter is an interface that groups the Get and Set methods.
type GetterSetter interface {
	Getter
	Setter
}

// KVStore is a key value store that supports all methods.
type KVStore interface {
	Getter
	Setter
	Deleter
	Iterator
}
