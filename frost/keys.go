package frost

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// GenerateShares deals a fresh t-of-n threshold key: every returned secret
// share belongs to exactly one member, and the public package is shared by
// all of them. The group secret is the constant term of a randomly sampled
// polynomial and never leaves this function.
//
// The caller owns any constraint on the resulting group key beyond validity,
// in particular the even-y requirement of Taproot outputs: a dealt group key
// has a random parity, so callers that need even-y must re-deal until they
// get one.
func GenerateShares(numMembers, threshold uint16) ([]*SecretShare,
	*PublicPackage, error) {

	if numMembers == 0 || threshold == 0 || threshold > numMembers {
		return nil, nil, fmt.Errorf("%w: %d-of-%d",
			ErrInvalidGroupParams, threshold, numMembers)
	}

	// Sample the dealer polynomial f of degree threshold-1. The constant
	// term f(0) is the group secret.
	coeffs := make([]*btcec.ModNScalar, threshold)
	for i := range coeffs {
		privKey, err := btcec.NewPrivateKey()
		if err != nil {
			return nil, nil, fmt.Errorf("unable to sample "+
				"polynomial coefficient: %w", err)
		}

		coeffs[i] = &privKey.Key
	}

	// The group key is f(0)*G.
	var groupJ btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(coeffs[0], &groupJ)
	groupJ.ToAffine()
	groupKey := btcec.NewPublicKey(&groupJ.X, &groupJ.Y)

	// Member i receives f(i) along with its verification share f(i)*G.
	shares := make([]*SecretShare, 0, numMembers)
	verificationShares := make(
		map[MemberID]*btcec.PublicKey, numMembers,
	)
	for i := uint16(1); i <= numMembers; i++ {
		id := MemberID(i)
		secret := evalPolynomial(coeffs, id)

		var shareJ btcec.JacobianPoint
		btcec.ScalarBaseMultNonConst(secret, &shareJ)
		shareJ.ToAffine()
		publicShare := btcec.NewPublicKey(&shareJ.X, &shareJ.Y)

		shares = append(shares, &SecretShare{
			ID:          id,
			Secret:      secret,
			PublicShare: publicShare,
			GroupKey:    groupKey,
		})
		verificationShares[id] = publicShare
	}

	log.Debugf("Dealt %d-of-%d shares under group key %x", threshold,
		numMembers, groupKey.SerializeCompressed())

	return shares, &PublicPackage{
		GroupKey:           groupKey,
		VerificationShares: verificationShares,
	}, nil
}

// evalPolynomial evaluates the polynomial with the given coefficients
// (constant term first) at x, using Horner's rule over the group order.
func evalPolynomial(coeffs []*btcec.ModNScalar, x MemberID) *btcec.ModNScalar {
	var xScalar btcec.ModNScalar
	xScalar.SetInt(uint32(x))

	result := new(btcec.ModNScalar).Set(coeffs[len(coeffs)-1])
	for i := len(coeffs) - 2; i >= 0; i-- {
		result.Mul(&xScalar).Add(coeffs[i])
	}

	return result
}
