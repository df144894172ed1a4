package resolver

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultSuffix names queries whose caller did not pick a suffix.
const DefaultSuffix = "bonusquery"

// newName returns <unix-millis>-<8 hex>-<suffix>. The random segment keeps
// names distinct when several resolutions start in the same millisecond.
func newName(now time.Time, suffix string) string {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%d-%s-%s", now.UnixMilli(), token, strings.ToLower(suffix))
}
