package retrieval

import "errors"

var (
	// ErrInvalidQuery means the query text was empty or top_k was out of range.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrRetrievalTimeout means the configured query timeout elapsed.
	ErrRetrievalTimeout = errors.New("retrieval timed out")
)
