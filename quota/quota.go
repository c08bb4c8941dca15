// Package quota meters quota-tracked features per user. The gateway consumes
// quota only for privileged users running on server-funded credentials.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aschepis/backscratcher/llmgate/catalog"
)

// Feature is a quota-tracked capability.
type Feature string

const (
	FeatureDeepResearch Feature = "DR"
	FeatureProSearch    Feature = "PS"
)

// FeatureForMode returns the feature metered for a chat mode.
func FeatureForMode(mode string) (Feature, bool) {
	switch mode {
	case catalog.ChatModeDeep:
		return FeatureDeepResearch, true
	case catalog.ChatModePro:
		return FeatureProSearch, true
	}
	return "", false
}

// Limits maps a feature to its monthly allowance. Features without a limit
// are not metered.
type Limits map[Feature]int

// DefaultLimits are the monthly allowances used when none are configured.
var DefaultLimits = Limits{
	FeatureDeepResearch: 10,
	FeatureProSearch:    50,
}

// Consumer records feature usage.
type Consumer interface {
	// Consume records amount uses of feature for userID. It returns an
	// *ExceededError when the usage would pass the limit, in which case
	// nothing is recorded.
	Consume(ctx context.Context, userID string, feature Feature, amount int) error
}

// ExceededError reports a spent allowance. Callers branch on it with
// errors.As, so it is never wrapped into another error type.
type ExceededError struct {
	UserID  string
	Feature Feature
	Limit   int
	Used    int
	ResetAt time.Time
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %d of %d used, resets %s",
		e.Feature, e.Used, e.Limit, e.ResetAt.Format(time.DateOnly))
}

// IsExceeded reports whether err is an *ExceededError.
func IsExceeded(err error) bool {
	var exceeded *ExceededError
	return errors.As(err, &exceeded)
}

// period returns the accounting period containing t and the time it ends.
// Periods are calendar months in UTC.
func period(t time.Time) (string, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start.Format("2006-01"), start.AddDate(0, 1, 0)
}
