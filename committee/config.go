// Package committee ties the threshold signing pieces into an operable
// custody setup: the key ceremony that deals and persists a committee's key
// material, the configuration artifact describing the resulting roster, and
// the two service shells (member node and orchestrator) that load those
// artifacts and serve.
package committee

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/frostvault/frostd/frost"
)

var (
	// ErrZeroThreshold is returned for a committee whose threshold is
	// zero. Such a config would let an empty set of members authorize a
	// spend, so nothing may serve with it.
	ErrZeroThreshold = errors.New("committee threshold must be positive")

	// ErrNoMembers is returned for a committee with an empty roster.
	ErrNoMembers = errors.New("committee has no members")

	// ErrThresholdTooLarge is returned when the threshold exceeds the
	// roster size, which no set of members could ever meet.
	ErrThresholdTooLarge = errors.New("committee threshold exceeds " +
		"member count")
)

// Member describes one committee signer as seen by the orchestrator.
type Member struct {
	// Address is the URL of the member's signer daemon.
	Address string `json:"address"`
}

// Config ties the signing threshold to the committee roster. The group
// public key deliberately does not appear here; it lives in the public key
// package written by the same ceremony, and the two artifacts are only
// meaningful together.
type Config struct {
	// Threshold is the number of members that must collaborate to
	// produce a signature.
	Threshold uint16 `json:"threshold"`

	// Members maps member ids to their endpoints.
	Members map[frost.MemberID]Member `json:"members"`
}

// Validate checks the invariants that make a committee usable. The ceremony
// runs it before writing the artifact and every loader runs it again, since
// a config file may have been hand edited in between.
func (c *Config) Validate() error {
	if c.Threshold == 0 {
		return ErrZeroThreshold
	}

	if len(c.Members) == 0 {
		return ErrNoMembers
	}

	if int(c.Threshold) > len(c.Members) {
		return fmt.Errorf("%w: %d-of-%d", ErrThresholdTooLarge,
			c.Threshold, len(c.Members))
	}

	for id, member := range c.Members {
		// Member ids start at one; a share evaluated at zero would be
		// the group secret.
		if id == 0 {
			return fmt.Errorf("member id 0 is not assignable")
		}

		if member.Address == "" {
			return fmt.Errorf("member %d has no address", id)
		}
	}

	return nil
}

// LoadConfig reads and validates a committee config artifact. An invalid
// config, in particular one with a zero threshold, fails here so that no
// process starts serving on top of it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read committee config: %w",
			err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unable to parse committee config "+
			"%s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid committee config %s: %w",
			path, err)
	}

	return &cfg, nil
}
