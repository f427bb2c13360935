// Package frost implements the threshold Schnorr signing capability the
// committee is built on: trusted-dealer share generation, per-member partial
// signing, and aggregation of partial signatures into a plain BIP-340
// signature for the group key. The ceremony and the committee services only
// depend on the small surface exposed here, so a different threshold-Schnorr
// implementation can be swapped in without touching them.
//
// The scheme is FROST with a trusted dealer: the dealer samples a random
// polynomial of degree t-1 over the secp256k1 group order, hands member i
// the evaluation f(i) as its secret share, and publishes f(i)*G as the
// member's verification share. Any t members can then produce partial
// signatures that aggregate into a signature under the group key f(0)*G.
// The group secret f(0) only ever exists inside the dealer function frame.
package frost

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

var (
	// ErrInvalidGroupParams is returned when asked to deal shares for a
	// nonsensical member-count/threshold combination.
	ErrInvalidGroupParams = fmt.Errorf("invalid group parameters")

	// ErrSecretShareZero is returned when a secret share scalar is zero,
	// which means the share was corrupted rather than dealt.
	ErrSecretShareZero = fmt.Errorf("secret share is zero")

	// ErrMissingCommitment is returned when signing or verifying with a
	// commitment set that does not cover the required member.
	ErrMissingCommitment = fmt.Errorf("nonce commitment missing for member")

	// ErrUnknownMember is returned when a public package holds no
	// verification share for the requested member.
	ErrUnknownMember = fmt.Errorf("no verification share for member")

	// ErrDuplicateCommitment is returned when the same member appears
	// twice in a commitment set.
	ErrDuplicateCommitment = fmt.Errorf("duplicate nonce commitment")

	// ErrNonceAtInfinity is returned if the combined group commitment is
	// the point at infinity, which can only happen with maliciously
	// chosen nonces.
	ErrNonceAtInfinity = fmt.Errorf("group commitment is the infinity " +
		"point")

	// ErrPartialSigInvalid is returned when a partial signature fails
	// verification against its member's verification share.
	ErrPartialSigInvalid = fmt.Errorf("partial signature is invalid")

	// ErrSignatureInvalid is returned when the aggregated signature does
	// not verify under the group key. Aggregating fewer than threshold
	// partial signatures always ends up here.
	ErrSignatureInvalid = fmt.Errorf("aggregated signature is invalid")
)

// MemberID identifies a committee member within the threshold group. IDs are
// 1-based since a share at x=0 would be the group secret itself.
type MemberID uint16

// SecretShare is the signing half of a member's key material: the dealer's
// polynomial evaluated at the member's ID, together with the public points
// needed to sign without any other artifact. It must never leave the member
// that received it.
type SecretShare struct {
	// ID is the member this share was dealt to.
	ID MemberID

	// Secret is the evaluation f(ID) of the dealer polynomial.
	Secret *btcec.ModNScalar

	// PublicShare is Secret*G, the member's verification share.
	PublicShare *btcec.PublicKey

	// GroupKey is the aggregate public key f(0)*G of the whole group.
	GroupKey *btcec.PublicKey
}

// PublicPackage is the public half of the ceremony output, shared by every
// member and the orchestrator: the group key plus each member's verification
// share, which is all that is needed to verify partial signatures.
type PublicPackage struct {
	// GroupKey is the aggregate public key of the group.
	GroupKey *btcec.PublicKey

	// VerificationShares maps each member to its public share.
	VerificationShares map[MemberID]*btcec.PublicKey
}

// VerificationShare returns the verification share of the given member.
func (p *PublicPackage) VerificationShare(
	id MemberID) (*btcec.PublicKey, error) {

	share, ok := p.VerificationShares[id]
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownMember, id)
	}

	return share, nil
}
