package postbox

// Database is the interface that wraps lifecycle methods of a storage backend
type Database interface {
	Open() error
	Close() error
}
