package frost

import (
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	secp "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
)

// testMsg returns a random 32-byte message digest.
func testMsg(t *testing.T) [32]byte {
	t.Helper()

	var msg [32]byte
	_, err := rand.Read(msg[:])
	require.NoError(t, err)

	return msg
}

// runSigningRound has the given members run one complete signing round over
// msg and returns the commitment set plus the partial signatures.
func runSigningRound(t *testing.T, shares map[MemberID]*SecretShare,
	signers []MemberID, msg [32]byte) ([]NonceCommitment,
	[]*PartialSignature) {

	t.Helper()

	nonces := make(map[MemberID]*Nonce, len(signers))
	commitments := make([]NonceCommitment, 0, len(signers))
	for _, id := range signers {
		nonce, err := NewNonce(id)
		require.NoError(t, err)

		nonces[id] = nonce
		commitments = append(commitments, nonce.Commitment())
	}

	partials := make([]*PartialSignature, 0, len(signers))
	for _, id := range signers {
		partial, err := SignPartial(
			shares[id], nonces[id], commitments, msg,
		)
		require.NoError(t, err)

		partials = append(partials, partial)
	}

	return commitments, partials
}

// shareMap keys the dealt shares by member ID for convenient lookup.
func shareMap(shares []*SecretShare) map[MemberID]*SecretShare {
	byID := make(map[MemberID]*SecretShare, len(shares))
	for _, share := range shares {
		byID[share.ID] = share
	}

	return byID
}

// TestThresholdSignAndAggregate asserts that any subset of at least
// threshold members can produce a signature that verifies as a plain BIP-340
// Schnorr signature under the group key.
func TestThresholdSignAndAggregate(t *testing.T) {
	t.Parallel()

	shares, pubPkg, err := GenerateShares(5, 3)
	require.NoError(t, err)
	byID := shareMap(shares)

	testCases := []struct {
		name    string
		signers []MemberID
	}{
		{
			name:    "first three members",
			signers: []MemberID{1, 2, 3},
		},
		{
			name:    "spread subset",
			signers: []MemberID{2, 4, 5},
		},
		{
			name:    "unsorted subset",
			signers: []MemberID{5, 1, 3},
		},
		{
			name:    "above threshold",
			signers: []MemberID{1, 2, 3, 4},
		},
		{
			name:    "all members",
			signers: []MemberID{1, 2, 3, 4, 5},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			msg := testMsg(t)
			commitments, partials := runSigningRound(
				t, byID, testCase.signers, msg,
			)

			sig, err := Aggregate(
				pubPkg, commitments, partials, msg,
			)
			require.NoError(t, err)

			// The signature must also verify through the plain
			// BIP-340 path on the x-only group key, because that
			// is what the chain does.
			xOnlyKey, err := schnorr.ParsePubKey(
				schnorr.SerializePubKey(pubPkg.GroupKey),
			)
			require.NoError(t, err)
			require.True(t, sig.Verify(msg[:], xOnlyKey))
		})
	}
}

// TestAggregateBelowThreshold asserts that fewer than threshold honest
// signers cannot produce a valid group signature.
func TestAggregateBelowThreshold(t *testing.T) {
	t.Parallel()

	shares, pubPkg, err := GenerateShares(5, 3)
	require.NoError(t, err)
	byID := shareMap(shares)

	msg := testMsg(t)
	commitments, partials := runSigningRound(
		t, byID, []MemberID{1, 2}, msg,
	)

	_, err = Aggregate(pubPkg, commitments, partials, msg)
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

// TestAggregateRejectsTamperedPartial asserts that a corrupted partial
// signature is attributed to the member that produced it.
func TestAggregateRejectsTamperedPartial(t *testing.T) {
	t.Parallel()

	shares, pubPkg, err := GenerateShares(4, 2)
	require.NoError(t, err)
	byID := shareMap(shares)

	msg := testMsg(t)
	commitments, partials := runSigningRound(
		t, byID, []MemberID{2, 3}, msg,
	)

	// Nudge member 3's contribution by one.
	one := new(btcec.ModNScalar).SetInt(1)
	partials[1].S.Add(one)

	_, err = Aggregate(pubPkg, commitments, partials, msg)
	require.ErrorIs(t, err, ErrPartialSigInvalid)
	require.ErrorContains(t, err, "member 3")

	// The per-partial verifier pins the same member.
	err = VerifyPartial(partials[1], pubPkg, commitments, msg)
	require.ErrorIs(t, err, ErrPartialSigInvalid)

	err = VerifyPartial(partials[0], pubPkg, commitments, msg)
	require.NoError(t, err)
}

// TestSignPartialInputChecks asserts the guards around commitment sets and
// share/nonce pairing.
func TestSignPartialInputChecks(t *testing.T) {
	t.Parallel()

	shares, _, err := GenerateShares(3, 2)
	require.NoError(t, err)
	byID := shareMap(shares)

	msg := testMsg(t)

	nonce1, err := NewNonce(1)
	require.NoError(t, err)
	nonce2, err := NewNonce(2)
	require.NoError(t, err)

	// The signer's own commitment is missing from the set.
	_, err = SignPartial(
		byID[1], nonce1, []NonceCommitment{nonce2.Commitment()}, msg,
	)
	require.ErrorIs(t, err, ErrMissingCommitment)

	// Share and nonce belong to different members.
	_, err = SignPartial(
		byID[1], nonce2,
		[]NonceCommitment{nonce1.Commitment(), nonce2.Commitment()},
		msg,
	)
	require.Error(t, err)

	// Duplicate member in the commitment set.
	_, err = SignPartial(
		byID[1], nonce1,
		[]NonceCommitment{nonce1.Commitment(), nonce1.Commitment()},
		msg,
	)
	require.ErrorIs(t, err, ErrDuplicateCommitment)

	// The set carries a different commitment for the signer than the
	// nonce it is signing with.
	otherNonce, err := NewNonce(1)
	require.NoError(t, err)
	_, err = SignPartial(
		byID[1], nonce1,
		[]NonceCommitment{
			otherNonce.Commitment(), nonce2.Commitment(),
		},
		msg,
	)
	require.ErrorIs(t, err, ErrMissingCommitment)
}

// TestOddParityGroupKey asserts that signing still works when the dealer
// happens to produce a group key with odd y parity, which the signers must
// compensate for internally.
func TestOddParityGroupKey(t *testing.T) {
	t.Parallel()

	// Deal until the group key has odd parity. Each attempt misses with
	// probability 1/2, so 64 attempts can only all miss if the dealer is
	// broken.
	var (
		shares []*SecretShare
		pubPkg *PublicPackage
	)
	found := false
	for attempt := 0; attempt < 64; attempt++ {
		var err error
		shares, pubPkg, err = GenerateShares(3, 2)
		require.NoError(t, err)

		keyBytes := pubPkg.GroupKey.SerializeCompressed()
		if keyBytes[0] == secp.PubKeyFormatCompressedOdd {
			found = true
			break
		}
	}
	require.True(t, found, "dealer never produced an odd-parity key")

	byID := shareMap(shares)
	msg := testMsg(t)
	commitments, partials := runSigningRound(
		t, byID, []MemberID{1, 3}, msg,
	)

	sig, err := Aggregate(pubPkg, commitments, partials, msg)
	require.NoError(t, err)

	xOnlyKey, err := schnorr.ParsePubKey(
		schnorr.SerializePubKey(pubPkg.GroupKey),
	)
	require.NoError(t, err)
	require.True(t, sig.Verify(msg[:], xOnlyKey))
}

// TestAggregatePartialCountMismatch asserts that the aggregator refuses
// rounds where the partial signature count does not match the commitment
// set.
func TestAggregatePartialCountMismatch(t *testing.T) {
	t.Parallel()

	shares, pubPkg, err := GenerateShares(3, 2)
	require.NoError(t, err)
	byID := shareMap(shares)

	msg := testMsg(t)
	commitments, partials := runSigningRound(
		t, byID, []MemberID{1, 2}, msg,
	)

	_, err = Aggregate(pubPkg, commitments, partials[:1], msg)
	require.Error(t, err)
}
