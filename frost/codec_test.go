package frost

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSecretShareJSONRoundTrip asserts that a dealt share survives the trip
// through its on-disk representation.
func TestSecretShareJSONRoundTrip(t *testing.T) {
	t.Parallel()

	shares, _, err := GenerateShares(3, 2)
	require.NoError(t, err)
	share := shares[1]

	encoded, err := json.Marshal(share)
	require.NoError(t, err)

	var decoded SecretShare
	require.NoError(t, json.Unmarshal(encoded, &decoded))

	require.Equal(t, share.ID, decoded.ID)
	require.True(t, share.Secret.Equals(decoded.Secret))
	require.True(t, share.PublicShare.IsEqual(decoded.PublicShare))
	require.True(t, share.GroupKey.IsEqual(decoded.GroupKey))
}

// TestSecretShareJSONRejectsCorruption asserts that a key file whose secret
// no longer matches its public share is refused at decode time.
func TestSecretShareJSONRejectsCorruption(t *testing.T) {
	t.Parallel()

	shares, _, err := GenerateShares(3, 2)
	require.NoError(t, err)

	encoded, err := json.Marshal(shares[0])
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(encoded, &fields))

	testCases := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{
			name: "secret does not match public share",
			mutate: func(fields map[string]any) {
				secret := fields["secret_share"].(string)
				flipped := "f"
				if secret[0] == 'f' {
					flipped = "0"
				}
				fields["secret_share"] = flipped + secret[1:]
			},
		},
		{
			name: "zero secret",
			mutate: func(fields map[string]any) {
				zero := make([]byte, 64)
				for i := range zero {
					zero[i] = '0'
				}
				fields["secret_share"] = string(zero)
			},
		},
		{
			name: "secret not hex",
			mutate: func(fields map[string]any) {
				fields["secret_share"] = "not-hex"
			},
		},
		{
			name: "truncated public share",
			mutate: func(fields map[string]any) {
				share := fields["public_share"].(string)
				fields["public_share"] = share[:16]
			},
		},
		{
			name: "invalid group key",
			mutate: func(fields map[string]any) {
				key := fields["group_key"].(string)
				fields["group_key"] = "05" + key[2:]
			},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			corrupted := make(map[string]any, len(fields))
			for k, v := range fields {
				corrupted[k] = v
			}
			testCase.mutate(corrupted)

			corruptedJSON, err := json.Marshal(corrupted)
			require.NoError(t, err)

			var decoded SecretShare
			require.Error(
				t, json.Unmarshal(corruptedJSON, &decoded),
			)
		})
	}
}

// TestPublicPackageJSONRoundTrip asserts that the shared public package
// survives serialization with every verification share intact.
func TestPublicPackageJSONRoundTrip(t *testing.T) {
	t.Parallel()

	_, pubPkg, err := GenerateShares(4, 3)
	require.NoError(t, err)

	encoded, err := json.Marshal(pubPkg)
	require.NoError(t, err)

	var decoded PublicPackage
	require.NoError(t, json.Unmarshal(encoded, &decoded))

	require.True(t, pubPkg.GroupKey.IsEqual(decoded.GroupKey))
	require.Len(
		t, decoded.VerificationShares,
		len(pubPkg.VerificationShares),
	)
	for id, share := range pubPkg.VerificationShares {
		decodedShare, err := decoded.VerificationShare(id)
		require.NoError(t, err)
		require.True(t, share.IsEqual(decodedShare))
	}
}

// TestPublicPackageJSONRejectsBadPoints asserts that malformed points are
// refused rather than skipped.
func TestPublicPackageJSONRejectsBadPoints(t *testing.T) {
	t.Parallel()

	var decoded PublicPackage

	err := json.Unmarshal(
		[]byte(`{"group_key": "02zz", "verification_shares": {}}`),
		&decoded,
	)
	require.Error(t, err)

	err = json.Unmarshal(
		[]byte(`{"group_key": "`+testFillerKey+`",
			"verification_shares": {"1": "00"}}`),
		&decoded,
	)
	require.Error(t, err)
}

// testFillerKey is a valid compressed point used as filler in decode tests.
const testFillerKey = "02f9308a019258c31049344f85f89d5229b531c845836f99b" +
	"08601f113bce036f9"
