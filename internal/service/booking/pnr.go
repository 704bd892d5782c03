package booking

import (
	"strings"

	"github.com/google/uuid"
)

const pnrPrefix = "PNR-"

// NewPNR returns "PNR-" followed by the first 8 hex digits of a random UUID,
// upper-cased.
func NewPNR() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return pnrPrefix + strings.ToUpper(id[:8])
}
