package frost

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestGenerateSharesParams asserts that nonsensical group parameters are
// rejected before any randomness is consumed.
func TestGenerateSharesParams(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		numMembers uint16
		threshold  uint16
		valid      bool
	}{
		{
			name:       "no members",
			numMembers: 0,
			threshold:  0,
			valid:      false,
		},
		{
			name:       "zero threshold",
			numMembers: 5,
			threshold:  0,
			valid:      false,
		},
		{
			name:       "threshold above member count",
			numMembers: 2,
			threshold:  3,
			valid:      false,
		},
		{
			name:       "single member",
			numMembers: 1,
			threshold:  1,
			valid:      true,
		},
		{
			name:       "full group threshold",
			numMembers: 4,
			threshold:  4,
			valid:      true,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			shares, pubPkg, err := GenerateShares(
				testCase.numMembers, testCase.threshold,
			)
			if !testCase.valid {
				require.ErrorIs(
					t, err, ErrInvalidGroupParams,
				)
				return
			}

			require.NoError(t, err)
			require.Len(t, shares, int(testCase.numMembers))
			require.NotNil(t, pubPkg)
		})
	}
}

// TestGenerateSharesConsistency asserts that a dealt group is internally
// consistent: one share per member, matching verification shares, and the
// same group key everywhere.
func TestGenerateSharesConsistency(t *testing.T) {
	t.Parallel()

	const (
		numMembers = 5
		threshold  = 3
	)

	shares, pubPkg, err := GenerateShares(numMembers, threshold)
	require.NoError(t, err)

	require.Len(t, shares, numMembers)
	require.Len(t, pubPkg.VerificationShares, numMembers)

	for i, share := range shares {
		require.Equal(t, MemberID(i+1), share.ID)
		require.False(t, share.Secret.IsZero())

		require.True(t, share.GroupKey.IsEqual(pubPkg.GroupKey))

		verificationShare, err := pubPkg.VerificationShare(share.ID)
		require.NoError(t, err)
		require.True(
			t, share.PublicShare.IsEqual(verificationShare),
		)
	}

	_, err = pubPkg.VerificationShare(MemberID(numMembers + 1))
	require.Error(t, err)
}

// testShareDealingProperties is a rapid property asserting that dealing
// succeeds and stays consistent for every valid member-count/threshold
// combination.
func testShareDealingProperties(t *rapid.T) {
	numMembers := rapid.IntRange(1, 10).Draw(t, "numMembers")
	threshold := rapid.IntRange(1, numMembers).Draw(t, "threshold")

	shares, pubPkg, err := GenerateShares(
		uint16(numMembers), uint16(threshold),
	)
	require.NoError(t, err)

	require.Len(t, shares, numMembers)
	require.Len(t, pubPkg.VerificationShares, numMembers)

	for _, share := range shares {
		require.True(t, share.GroupKey.IsEqual(pubPkg.GroupKey))
	}
}

// TestShareDealingProperties runs the share dealing property checks.
func TestShareDealingProperties(t *testing.T) {
	t.Parallel()

	rapid.Check(t, testShareDealingProperties)
}
