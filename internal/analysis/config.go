package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"analysisd/internal/completion"
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultTimeout = 20 * time.Second
)

// Overlap policies for an admission that arrives while a request is active.
const (
	// OverlapReject answers the newcomer with ErrBusy.
	OverlapReject = "reject"
	// OverlapSupersede settles the active request with an error and admits the newcomer.
	OverlapSupersede = "supersede"
)

// Config encapsulates all tunables for Supervisor construction.
type Config struct {
	Timeout       time.Duration
	OverlapPolicy string
	Completion    completion.Config
	// Keywords mark a query as structured; empty uses schedule.DefaultKeywords.
	Keywords []string
	Logger   *zerolog.Logger
	Events   EventPublisher
}

// normalize applies defaults and validates the overlap policy.
func (c Config) normalize() (Config, error) {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	c.OverlapPolicy = strings.ToLower(strings.TrimSpace(c.OverlapPolicy))
	switch c.OverlapPolicy {
	case "":
		c.OverlapPolicy = OverlapReject
	case OverlapReject, OverlapSupersede:
	default:
		return c, fmt.Errorf("unknown overlap policy %q (want %s or %s)", c.OverlapPolicy, OverlapReject, OverlapSupersede)
	}
	if c.Events == nil {
		c.Events = noopPublisher{}
	}
	return c, nil
}
