package perimeter

import (
	"errors"

	"github.com/perimeterhq/perimeter/session"
)

// Session-layer sentinels re-exported so callers can errors.Is against the
// root package alone.
var (
	// ErrSessionNotFound marks a token that is absent, expired, or
	// terminated. Recovered locally as "unauthenticated", never a server
	// error.
	ErrSessionNotFound = session.ErrNotFound

	// ErrStoreUnavailable marks a transient infrastructure failure.
	// Callers must treat it as "try again", not "definitely denied".
	ErrStoreUnavailable = session.ErrStoreUnavailable
)

var (
	// ErrBuilderUsed is returned by Build on a builder that already built.
	ErrBuilderUsed = errors.New("builder already used")

	// ErrRedisRequired is returned by Build when no Redis client was set.
	ErrRedisRequired = errors.New("redis client required")
)
