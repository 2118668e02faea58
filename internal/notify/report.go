package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgnsrekt/guild-roster/internal/roster"
)

// Outcome classifies how a scrape ended.
type Outcome int

const (
	Complete Outcome = iota
	// Partial means the scrape stopped early but its roster was exported.
	Partial
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Complete:
		return "complete"
	case Partial:
		return "partial"
	default:
		return "failed"
	}
}

// Report describes a finished scrape.
type Report struct {
	GuildID  string
	Result   *roster.Result
	Duration time.Duration
	Err      error
}

func (r Report) Outcome() Outcome {
	switch {
	case r.Err == nil:
		return Complete
	case roster.IsRetryBudgetExhausted(r.Err), errors.Is(r.Err, context.Canceled):
		return Partial
	default:
		return Failed
	}
}

func (r Report) title() string {
	switch r.Outcome() {
	case Complete:
		return fmt.Sprintf("guild %s: roster complete", r.GuildID)
	case Partial:
		return fmt.Sprintf("guild %s: partial roster", r.GuildID)
	default:
		return fmt.Sprintf("guild %s: scrape failed", r.GuildID)
	}
}

// priority uses the ntfy scale: 3 default, 4 high, 5 urgent.
func (r Report) priority() int {
	return 3 + int(r.Outcome())
}

func (r Report) tag() string {
	switch r.Outcome() {
	case Complete:
		return "white_check_mark"
	case Partial:
		return "warning"
	default:
		return "x"
	}
}

func (r Report) body() string {
	var members, requests, attempts int
	if r.Result != nil {
		members = len(r.Result.Members)
		requests = r.Result.Requests
		attempts = r.Result.Attempts
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d unique members exported\n", members)
	fmt.Fprintf(&b, "%d range requests over %d attempts in %s", requests, attempts, r.Duration.Round(time.Second))
	if r.Err != nil {
		fmt.Fprintf(&b, "\n\n%v", r.Err)
	}
	return b.String()
}
