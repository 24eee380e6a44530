package storage

import "errors"

// ErrLimitReached is returned by the increment operations when the row is
// already at or above the cap. The increment is not applied.
var ErrLimitReached = errors.New("daily limit reached")
