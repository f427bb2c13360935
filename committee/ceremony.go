package committee

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/frostvault/frostd/frost"
	"github.com/frostvault/frostd/vaultkeys"
)

const (
	// maxDealAttempts bounds the even-y rejection loop. A sound dealer
	// fails the parity check with probability 1/2 per dealing, so
	// reaching this bound means the randomness source is broken, not
	// unlucky.
	maxDealAttempts = 256

	// memberBasePort is the port in the first member's placeholder
	// address; the member with file ordinal k gets memberBasePort+k.
	memberBasePort = 8890

	// memberHost is the host of the generated placeholder addresses.
	memberHost = "127.0.0.1"
)

// ErrTooManyDealings is returned when the rejection loop hits its bound
// without ever seeing an even-y group key.
var ErrTooManyDealings = errors.New("no even-y group key after bounded " +
	"dealings, randomness source appears broken")

// KeyGenerator deals threshold key shares for a committee. Implementations
// must draw fresh randomness on every call: the ceremony rejects whole
// dealings to steer the group key's parity and never mixes shares across
// dealings.
type KeyGenerator interface {
	// Generate deals secret shares for numMembers members with the given
	// signing threshold.
	Generate(numMembers, threshold uint16) ([]*frost.SecretShare,
		*frost.PublicPackage, error)
}

// KeyGeneratorFunc adapts a plain function to the KeyGenerator interface.
type KeyGeneratorFunc func(numMembers, threshold uint16) (
	[]*frost.SecretShare, *frost.PublicPackage, error)

// Generate deals one batch of shares by calling f.
//
// NOTE: This method is part of the KeyGenerator interface.
func (f KeyGeneratorFunc) Generate(numMembers, threshold uint16) (
	[]*frost.SecretShare, *frost.PublicPackage, error) {

	return f(numMembers, threshold)
}

// Ceremony generates a committee's key material and writes the three
// artifact classes: one secret share file per member, the shared public key
// package, and the committee config with placeholder member addresses.
// Handing each key file to its member, and only to its member, is an
// operational step outside the ceremony.
type Ceremony struct {
	// Members is the committee size.
	Members uint16

	// Threshold is how many members must collaborate to sign.
	Threshold uint16

	// OutputDir is the directory the artifacts are written into. It is
	// created with owner-only permissions if absent.
	OutputDir string

	// KeyGen deals candidate shares. Nil means the built-in dealer.
	KeyGen KeyGenerator
}

// Result reports what a ceremony run produced.
type Result struct {
	// PublicPackage is the group key material that was written.
	PublicPackage *frost.PublicPackage

	// Config is the committee config that was written.
	Config *Config

	// KeyFiles holds the per-member secret share paths in member order.
	KeyFiles []string

	// Attempts is how many dealings ran before one produced an even-y
	// group key.
	Attempts int
}

// Run deals key shares until the group key has an even y coordinate, then
// writes all artifacts into the output directory.
//
// The parity constraint comes from Taproot: outputs commit to an x-only
// group key, and every signer assumes the even-y candidate. A dealing with
// an odd-y group key is thrown away entirely and redealt from fresh
// randomness.
func (c *Ceremony) Run() (*Result, error) {
	keyGen := c.KeyGen
	if keyGen == nil {
		keyGen = KeyGeneratorFunc(frost.GenerateShares)
	}

	log.Infof("Starting key ceremony for a %d-of-%d committee",
		c.Threshold, c.Members)

	var (
		shares   []*frost.SecretShare
		pubPkg   *frost.PublicPackage
		attempts int
	)
	for {
		if attempts == maxDealAttempts {
			return nil, ErrTooManyDealings
		}
		attempts++

		var err error
		shares, pubPkg, err = keyGen.Generate(c.Members, c.Threshold)
		if err != nil {
			return nil, err
		}

		if vaultkeys.HasEvenY(pubPkg.GroupKey) {
			break
		}

		log.Debugf("Dealing %d produced an odd-y group key, "+
			"redealing", attempts)
	}

	log.Infof("Group key %x settled after %d dealing(s)",
		pubPkg.GroupKey.SerializeCompressed(), attempts)

	if err := os.MkdirAll(c.OutputDir, 0700); err != nil {
		return nil, fmt.Errorf("unable to create output dir: %w", err)
	}

	// Order shares by member id so file ordinals are stable regardless
	// of how the generator ordered them.
	sort.Slice(shares, func(i, j int) bool {
		return shares[i].ID < shares[j].ID
	})

	cfg := &Config{
		Threshold: c.Threshold,
		Members:   make(map[frost.MemberID]Member, len(shares)),
	}

	keyFiles := make([]string, 0, len(shares))
	for ordinal, share := range shares {
		path := filepath.Join(c.OutputDir, KeyFilename(ordinal))
		if err := writeJSONFile(path, share, 0600); err != nil {
			return nil, err
		}
		keyFiles = append(keyFiles, path)

		cfg.Members[share.ID] = Member{
			Address: fmt.Sprintf("http://%s:%d", memberHost,
				memberBasePort+ordinal),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	err := writeJSONFile(
		filepath.Join(c.OutputDir, PublicPackageFilename), pubPkg,
		0644,
	)
	if err != nil {
		return nil, err
	}

	err = writeJSONFile(
		filepath.Join(c.OutputDir, ConfigFilename), cfg, 0644,
	)
	if err != nil {
		return nil, err
	}

	log.Infof("Ceremony artifacts written to %s", c.OutputDir)

	return &Result{
		PublicPackage: pubPkg,
		Config:        cfg,
		KeyFiles:      keyFiles,
		Attempts:      attempts,
	}, nil
}
