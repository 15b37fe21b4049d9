package tools

import "time"

// Query constants
const (
	defaultQueryLimit = 100
	maxQueryLimit     = 10000

	// Loaded indexes are kept this long before the file is read again
	indexCacheSize = 16
	indexCacheTTL  = 5 * time.Minute
)
