package frost

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// secretShareJSON is the on-disk form of a SecretShare. Scalars and points
// are hex encoded so the artifacts stay greppable during incident response.
type secretShareJSON struct {
	MemberID    uint16 `json:"member_id"`
	SecretShare string `json:"secret_share"`
	PublicShare string `json:"public_share"`
	GroupKey    string `json:"group_key"`
}

// publicPackageJSON is the on-disk form of a PublicPackage.
type publicPackageJSON struct {
	GroupKey           string              `json:"group_key"`
	VerificationShares map[MemberID]string `json:"verification_shares"`
}

// MarshalJSON serializes the share with hex-encoded key material.
//
// NOTE: This method is part of the json.Marshaler interface.
func (s *SecretShare) MarshalJSON() ([]byte, error) {
	if s.Secret == nil || s.PublicShare == nil || s.GroupKey == nil {
		return nil, fmt.Errorf("incomplete secret share for member "+
			"%d", s.ID)
	}

	var secretBytes [32]byte
	s.Secret.PutBytes(&secretBytes)

	return json.Marshal(&secretShareJSON{
		MemberID:    uint16(s.ID),
		SecretShare: hex.EncodeToString(secretBytes[:]),
		PublicShare: hex.EncodeToString(
			s.PublicShare.SerializeCompressed(),
		),
		GroupKey: hex.EncodeToString(
			s.GroupKey.SerializeCompressed(),
		),
	})
}

// UnmarshalJSON decodes a share and validates that the secret actually
// matches the stored public share, so a corrupted or hand-edited key file is
// refused at load time instead of producing unusable partial signatures.
//
// NOTE: This method is part of the json.Unmarshaler interface.
func (s *SecretShare) UnmarshalJSON(data []byte) error {
	var enc secretShareJSON
	if err := json.Unmarshal(data, &enc); err != nil {
		return err
	}

	secret, err := parseScalar(enc.SecretShare)
	if err != nil {
		return fmt.Errorf("invalid secret share: %w", err)
	}
	if secret.IsZero() {
		return ErrSecretShareZero
	}

	publicShare, err := parsePoint(enc.PublicShare)
	if err != nil {
		return fmt.Errorf("invalid public share: %w", err)
	}
	groupKey, err := parsePoint(enc.GroupKey)
	if err != nil {
		return fmt.Errorf("invalid group key: %w", err)
	}

	// The public share is derivable from the secret, so a mismatch means
	// the file was corrupted.
	var expectedJ btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(secret, &expectedJ)
	expectedJ.ToAffine()
	expected := btcec.NewPublicKey(&expectedJ.X, &expectedJ.Y)
	if !expected.IsEqual(publicShare) {
		return fmt.Errorf("secret share of member %d does not "+
			"match its public share", enc.MemberID)
	}

	s.ID = MemberID(enc.MemberID)
	s.Secret = secret
	s.PublicShare = publicShare
	s.GroupKey = groupKey

	return nil
}

// MarshalJSON serializes the package with hex-encoded points.
//
// NOTE: This method is part of the json.Marshaler interface.
func (p *PublicPackage) MarshalJSON() ([]byte, error) {
	if p.GroupKey == nil {
		return nil, fmt.Errorf("public package has no group key")
	}

	shares := make(map[MemberID]string, len(p.VerificationShares))
	for id, share := range p.VerificationShares {
		shares[id] = hex.EncodeToString(share.SerializeCompressed())
	}

	return json.Marshal(&publicPackageJSON{
		GroupKey: hex.EncodeToString(
			p.GroupKey.SerializeCompressed(),
		),
		VerificationShares: shares,
	})
}

// UnmarshalJSON decodes a package, validating every embedded point.
//
// NOTE: This method is part of the json.Unmarshaler interface.
func (p *PublicPackage) UnmarshalJSON(data []byte) error {
	var enc publicPackageJSON
	if err := json.Unmarshal(data, &enc); err != nil {
		return err
	}

	groupKey, err := parsePoint(enc.GroupKey)
	if err != nil {
		return fmt.Errorf("invalid group key: %w", err)
	}

	shares := make(
		map[MemberID]*btcec.PublicKey, len(enc.VerificationShares),
	)
	for id, shareHex := range enc.VerificationShares {
		share, err := parsePoint(shareHex)
		if err != nil {
			return fmt.Errorf("invalid verification share of "+
				"member %d: %w", id, err)
		}
		shares[id] = share
	}

	p.GroupKey = groupKey
	p.VerificationShares = shares

	return nil
}

// parseScalar decodes a hex-encoded 32-byte scalar, rejecting values that
// overflow the group order.
func parseScalar(scalarHex string) (*btcec.ModNScalar, error) {
	scalarBytes, err := hex.DecodeString(scalarHex)
	if err != nil {
		return nil, err
	}
	if len(scalarBytes) != 32 {
		return nil, fmt.Errorf("scalar must be 32 bytes, got %d",
			len(scalarBytes))
	}

	scalar := new(btcec.ModNScalar)
	if overflow := scalar.SetByteSlice(scalarBytes); overflow {
		return nil, fmt.Errorf("scalar overflows the group order")
	}

	return scalar, nil
}

// parsePoint decodes a hex-encoded compressed public key.
func parsePoint(pointHex string) (*btcec.PublicKey, error) {
	pointBytes, err := hex.DecodeString(pointHex)
	if err != nil {
		return nil, err
	}

	return btcec.ParsePubKey(pointBytes)
}
