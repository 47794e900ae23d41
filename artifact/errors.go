package artifact

import (
	"fmt"

	"github.com/hupe1980/novelmesh/core"
)

// ErrNotFound is returned when an artifact does not exist. It matches
// core.ErrNotFound.
var ErrNotFound = fmt.Errorf("artifact %w", core.ErrNotFound)
