package committee

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/frostvault/frostd/frost"
)

const (
	// ConfigFilename is the committee config artifact written by the
	// ceremony and loaded by the orchestrator.
	ConfigFilename = "committee-cfg.json"

	// PublicPackageFilename is the shared public key package artifact.
	PublicPackageFilename = "publickey-package.json"
)

// KeyFilename returns the name of a member's secret share artifact. File
// ordinals are zero based while member ids start at one, so member 1 owns
// key-0.json.
func KeyFilename(ordinal int) string {
	return fmt.Sprintf("key-%d.json", ordinal)
}

// LoadSecretShare reads one member's secret share artifact. Decoding
// validates the share against its own public points, so a corrupted or
// truncated file fails here rather than at signing time.
func LoadSecretShare(path string) (*frost.SecretShare, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read key file: %w", err)
	}

	var share frost.SecretShare
	if err := json.Unmarshal(data, &share); err != nil {
		return nil, fmt.Errorf("unable to parse key file %s: %w",
			path, err)
	}

	return &share, nil
}

// LoadPublicPackage reads the shared public key package artifact.
func LoadPublicPackage(path string) (*frost.PublicPackage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read public key "+
			"package: %w", err)
	}

	var pubPkg frost.PublicPackage
	if err := json.Unmarshal(data, &pubPkg); err != nil {
		return nil, fmt.Errorf("unable to parse public key "+
			"package %s: %w", path, err)
	}

	return &pubPkg, nil
}

// writeJSONFile writes one artifact with the given permissions.
func writeJSONFile(path string, v interface{}, perm os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode %s: %w", path, err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("unable to write %s: %w", path, err)
	}

	return nil
}
