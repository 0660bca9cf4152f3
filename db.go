package homeletter

// Database is a store that must be opened before use and closed on shutdown.
type Database interface {
	Open() error
	Close() error
}
