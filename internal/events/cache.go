package events

// QueryCacheHit is emitted when a parsed query document is served from the
// query cache.
type QueryCacheHit struct {
	Query string
}

// QueryCacheMiss is emitted when a query had to be parsed and validated.
// Err is set when the query was rejected.
type QueryCacheMiss struct {
	Query string
	Err   error
}
