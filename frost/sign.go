package frost

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	secp "github.com/decred/dcrd/dcrec/secp256k1/v4"
)

var (
	// bindingFactorTag is the tag used to derive each signer's nonce
	// binding factor, which ties the second nonce to the signer set, the
	// message and the signer's identity.
	bindingFactorTag = []byte("frost/bindingfactor")

	// challengeHashTag is the tag used to construct the challenge hash.
	// Using the BIP-340 tag here is what makes aggregated signatures
	// verify as ordinary taproot Schnorr signatures.
	challengeHashTag = []byte("BIP0340/challenge")
)

// Nonce is the single-use secret signing state a member generates for one
// signing round. It must never be reused across messages: nonce reuse leaks
// the secret share.
type Nonce struct {
	id MemberID

	// hiding and binding are the secret nonce pair (d, e).
	hiding  btcec.ModNScalar
	binding btcec.ModNScalar

	commitment NonceCommitment
}

// NonceCommitment is the public half of a member's signing nonce, exchanged
// with every other participant before partial signatures are produced.
type NonceCommitment struct {
	// ID is the member the commitment belongs to.
	ID MemberID

	// Hiding is D = d*G.
	Hiding *btcec.PublicKey

	// Binding is E = e*G.
	Binding *btcec.PublicKey
}

// NewNonce generates a fresh nonce pair for the given member.
func NewNonce(id MemberID) (*Nonce, error) {
	hiding, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("unable to sample hiding nonce: %w",
			err)
	}
	binding, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("unable to sample binding nonce: %w",
			err)
	}

	nonce := &Nonce{
		id:      id,
		hiding:  hiding.Key,
		binding: binding.Key,
		commitment: NonceCommitment{
			ID:      id,
			Hiding:  hiding.PubKey(),
			Binding: binding.PubKey(),
		},
	}

	return nonce, nil
}

// Commitment returns the public commitment to broadcast for this nonce.
func (n *Nonce) Commitment() NonceCommitment {
	return n.commitment
}

// PartialSignature is one member's contribution to a group signature. It is
// not a valid Schnorr signature on its own and must be aggregated with the
// contributions of the other participants.
type PartialSignature struct {
	// ID is the member that produced this partial signature.
	ID MemberID

	// S is the partial signature scalar.
	S *btcec.ModNScalar
}

// signingContext carries the state shared by every participant of one round:
// the combined group commitment, the per-member binding factors, and the
// BIP-340 challenge.
type signingContext struct {
	commitments    []NonceCommitment
	bindingFactors map[MemberID]*btcec.ModNScalar

	// groupCommitment is the affine point R the signature commits to.
	groupCommitment btcec.JacobianPoint

	// challenge is e = H(tag, R.x || P.x || m).
	challenge btcec.ModNScalar

	// nonceParity is -1 if R has an odd y coordinate and every signer
	// must negate its secret nonces, 1 otherwise.
	nonceParity *btcec.ModNScalar

	// keyParity is -1 if the group key has an odd y coordinate and every
	// signer must negate its secret share, 1 otherwise.
	keyParity *btcec.ModNScalar
}

// newSigningContext derives the shared round state from the group key, the
// full commitment set and the 32-byte message digest being signed.
func newSigningContext(groupKey *btcec.PublicKey,
	commitments []NonceCommitment, msg [32]byte) (*signingContext, error) {

	sorted, err := sortCommitments(commitments)
	if err != nil {
		return nil, err
	}

	// Serialize the full commitment list once; every member's binding
	// factor commits to it so nobody can swap commitments after seeing
	// the others.
	var commitBuf bytes.Buffer
	for _, commitment := range sorted {
		var idBytes [2]byte
		binary.BigEndian.PutUint16(idBytes[:], uint16(commitment.ID))
		commitBuf.Write(idBytes[:])
		commitBuf.Write(commitment.Hiding.SerializeCompressed())
		commitBuf.Write(commitment.Binding.SerializeCompressed())
	}
	commitBytes := commitBuf.Bytes()

	// Combine the commitments into the group commitment, blinding each
	// member's second nonce with its binding factor:
	//  * R = sum(D_i + b_i*E_i)
	ctx := &signingContext{
		commitments: sorted,
		bindingFactors: make(
			map[MemberID]*btcec.ModNScalar, len(sorted),
		),
	}
	for _, commitment := range sorted {
		factor := bindingFactor(
			groupKey, msg, commitBytes, commitment.ID,
		)
		ctx.bindingFactors[commitment.ID] = factor

		var hidingJ, bindingJ btcec.JacobianPoint
		commitment.Hiding.AsJacobian(&hidingJ)
		commitment.Binding.AsJacobian(&bindingJ)

		btcec.ScalarMultNonConst(factor, &bindingJ, &bindingJ)
		btcec.AddNonConst(&hidingJ, &bindingJ, &hidingJ)
		btcec.AddNonConst(
			&ctx.groupCommitment, &hidingJ, &ctx.groupCommitment,
		)
	}

	// ToAffine maps the point at infinity to all-zero coordinates, which
	// is what makes this check reliable.
	ctx.groupCommitment.ToAffine()
	if ctx.groupCommitment.X.IsZero() && ctx.groupCommitment.Y.IsZero() {
		return nil, ErrNonceAtInfinity
	}

	// BIP-340 fixes both R and P to even-y, so work out how much
	// negation the signers need to apply on their side.
	ctx.nonceParity = new(btcec.ModNScalar).SetInt(1)
	if ctx.groupCommitment.Y.IsOdd() {
		ctx.nonceParity.Negate()
	}

	ctx.keyParity = new(btcec.ModNScalar).SetInt(1)
	groupKeyBytes := groupKey.SerializeCompressed()
	if groupKeyBytes[0] == secp.PubKeyFormatCompressedOdd {
		ctx.keyParity.Negate()
	}

	// The challenge commits to the x-only forms of both the group
	// commitment and the group key:
	//  * e = H(tag=challengeHashTag, R || P || m)
	nonceKey := btcec.NewPublicKey(
		&ctx.groupCommitment.X, &ctx.groupCommitment.Y,
	)

	var challengeMsg bytes.Buffer
	challengeMsg.Write(schnorr.SerializePubKey(nonceKey))
	challengeMsg.Write(schnorr.SerializePubKey(groupKey))
	challengeMsg.Write(msg[:])
	challengeBytes := chainhash.TaggedHash(
		challengeHashTag, challengeMsg.Bytes(),
	)
	ctx.challenge.SetByteSlice(challengeBytes[:])

	return ctx, nil
}

// participantIDs returns the sorted member IDs of the round.
func (s *signingContext) participantIDs() []MemberID {
	ids := make([]MemberID, len(s.commitments))
	for i, commitment := range s.commitments {
		ids[i] = commitment.ID
	}

	return ids
}

// SignPartial produces this member's contribution to the group signature
// over the 32-byte message digest msg. The commitment set must contain the
// member's own commitment matching the passed nonce, and must be identical
// across all participants of the round.
func SignPartial(share *SecretShare, nonce *Nonce,
	commitments []NonceCommitment, msg [32]byte) (*PartialSignature,
	error) {

	if share.Secret == nil || share.Secret.IsZero() {
		return nil, ErrSecretShareZero
	}
	if share.ID != nonce.id {
		return nil, fmt.Errorf("share belongs to member %d but "+
			"nonce to member %d", share.ID, nonce.id)
	}

	ctx, err := newSigningContext(share.GroupKey, commitments, msg)
	if err != nil {
		return nil, err
	}

	factor, ok := ctx.bindingFactors[share.ID]
	if !ok {
		return nil, fmt.Errorf("%w: member %d", ErrMissingCommitment,
			share.ID)
	}

	// The nonce the commitment set was built from must be the one we are
	// signing with, otherwise we would leak share material by signing
	// with somebody else's commitment.
	ownCommitment := nonce.commitment
	for _, commitment := range ctx.commitments {
		if commitment.ID != share.ID {
			continue
		}
		if !commitment.Hiding.IsEqual(ownCommitment.Hiding) ||
			!commitment.Binding.IsEqual(ownCommitment.Binding) {

			return nil, fmt.Errorf("%w: commitment of member "+
				"%d does not match local nonce",
				ErrMissingCommitment, share.ID)
		}
	}

	lambda, err := lagrangeCoefficient(share.ID, ctx.participantIDs())
	if err != nil {
		return nil, err
	}

	// Apply the parity factors: the secret nonces follow R, the secret
	// share follows the group key.
	hiding := new(btcec.ModNScalar).Set(&nonce.hiding)
	binding := new(btcec.ModNScalar).Set(&nonce.binding)
	hiding.Mul(ctx.nonceParity)
	binding.Mul(ctx.nonceParity)

	secret := new(btcec.ModNScalar).Set(share.Secret)
	secret.Mul(ctx.keyParity)

	// The partial signature is:
	//  * z_i = d_i + b_i*e_i + lambda_i*c*s_i
	z := new(btcec.ModNScalar)
	z.Add(hiding).
		Add(binding.Mul(factor)).
		Add(secret.Mul(lambda).Mul(&ctx.challenge))

	partial := &PartialSignature{
		ID: share.ID,
		S:  z,
	}

	// Self-check the contribution against our own verification share so
	// a broken share is caught here instead of at aggregation time on
	// the orchestrator.
	err = verifyPartialWithContext(
		partial, share.PublicShare, ctx,
	)
	if err != nil {
		return nil, err
	}

	return partial, nil
}

// VerifyPartial checks one member's partial signature against its
// verification share, using the same commitment set and message the round
// was run with. It lets an aggregator identify exactly which member produced
// garbage instead of only learning that the final signature is bad.
func VerifyPartial(partial *PartialSignature, pubPkg *PublicPackage,
	commitments []NonceCommitment, msg [32]byte) error {

	verificationShare, err := pubPkg.VerificationShare(partial.ID)
	if err != nil {
		return err
	}

	ctx, err := newSigningContext(pubPkg.GroupKey, commitments, msg)
	if err != nil {
		return err
	}

	return verifyPartialWithContext(partial, verificationShare, ctx)
}

// verifyPartialWithContext checks that:
//
//	z_i*G == R_i + lambda_i*c*Y_i
//
// with R_i and Y_i negated according to the round's parity factors.
func verifyPartialWithContext(partial *PartialSignature,
	verificationShare *btcec.PublicKey, ctx *signingContext) error {

	factor, ok := ctx.bindingFactors[partial.ID]
	if !ok {
		return fmt.Errorf("%w: member %d", ErrMissingCommitment,
			partial.ID)
	}

	var commitment *NonceCommitment
	for i := range ctx.commitments {
		if ctx.commitments[i].ID == partial.ID {
			commitment = &ctx.commitments[i]
			break
		}
	}
	if commitment == nil {
		return fmt.Errorf("%w: member %d", ErrMissingCommitment,
			partial.ID)
	}

	lambda, err := lagrangeCoefficient(
		partial.ID, ctx.participantIDs(),
	)
	if err != nil {
		return err
	}

	// R_i = D_i + b_i*E_i, flipped with the nonce parity.
	var hidingJ, bindingJ btcec.JacobianPoint
	commitment.Hiding.AsJacobian(&hidingJ)
	commitment.Binding.AsJacobian(&bindingJ)
	btcec.ScalarMultNonConst(factor, &bindingJ, &bindingJ)
	btcec.AddNonConst(&hidingJ, &bindingJ, &hidingJ)
	btcec.ScalarMultNonConst(ctx.nonceParity, &hidingJ, &hidingJ)

	// lambda_i*c*Y_i, flipped with the key parity.
	var shareJ btcec.JacobianPoint
	verificationShare.AsJacobian(&shareJ)
	coeff := new(btcec.ModNScalar).Set(&ctx.challenge)
	coeff.Mul(lambda).Mul(ctx.keyParity)
	btcec.ScalarMultNonConst(coeff, &shareJ, &shareJ)

	var sG, rhs btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(partial.S, &sG)
	btcec.AddNonConst(&hidingJ, &shareJ, &rhs)

	sG.ToAffine()
	rhs.ToAffine()

	if sG != rhs {
		return fmt.Errorf("%w: member %d", ErrPartialSigInvalid,
			partial.ID)
	}

	return nil
}

// Aggregate combines the partial signatures of one round into a 64-byte
// BIP-340 Schnorr signature and verifies it against the group key before
// returning it. Every partial signature is checked individually first so a
// misbehaving member is reported by ID.
func Aggregate(pubPkg *PublicPackage, commitments []NonceCommitment,
	partials []*PartialSignature, msg [32]byte) (*schnorr.Signature,
	error) {

	ctx, err := newSigningContext(pubPkg.GroupKey, commitments, msg)
	if err != nil {
		return nil, err
	}

	if len(partials) != len(ctx.commitments) {
		return nil, fmt.Errorf("%d partial signatures for %d "+
			"commitments", len(partials), len(ctx.commitments))
	}

	var z btcec.ModNScalar
	for _, partial := range partials {
		verificationShare, err := pubPkg.VerificationShare(
			partial.ID,
		)
		if err != nil {
			return nil, err
		}

		err = verifyPartialWithContext(
			partial, verificationShare, ctx,
		)
		if err != nil {
			return nil, err
		}

		z.Add(partial.S)
	}

	sig := schnorr.NewSignature(&ctx.groupCommitment.X, &z)

	// The per-partial checks above only prove each member signed
	// honestly for this commitment set. If the set is smaller than the
	// threshold the Lagrange interpolation hits the wrong secret and
	// this final check is what fails.
	if !sig.Verify(msg[:], pubPkg.GroupKey) {
		return nil, ErrSignatureInvalid
	}

	log.Debugf("Aggregated %d partial signatures over msg %x",
		len(partials), msg)

	return sig, nil
}

// bindingFactor derives member id's binding factor for one round:
//
//	b_i = H(tag=bindingFactorTag, P || m || commitments || id)
func bindingFactor(groupKey *btcec.PublicKey, msg [32]byte,
	commitmentBytes []byte, id MemberID) *btcec.ModNScalar {

	var idBytes [2]byte
	binary.BigEndian.PutUint16(idBytes[:], uint16(id))

	var buf bytes.Buffer
	buf.Write(schnorr.SerializePubKey(groupKey))
	buf.Write(msg[:])
	buf.Write(commitmentBytes)
	buf.Write(idBytes[:])

	factorHash := chainhash.TaggedHash(bindingFactorTag, buf.Bytes())

	factor := new(btcec.ModNScalar)
	factor.SetByteSlice(factorHash[:])

	return factor
}

// lagrangeCoefficient computes member id's Lagrange coefficient at zero for
// the participant set ids:
//
//	lambda_i = prod(x_j / (x_j - x_i)) for all j != i
func lagrangeCoefficient(id MemberID, ids []MemberID) (*btcec.ModNScalar,
	error) {

	var xi btcec.ModNScalar
	xi.SetInt(uint32(id))

	found := false
	num := new(btcec.ModNScalar).SetInt(1)
	den := new(btcec.ModNScalar).SetInt(1)
	for _, other := range ids {
		if other == id {
			found = true
			continue
		}

		var xj btcec.ModNScalar
		xj.SetInt(uint32(other))
		num.Mul(&xj)

		// den *= x_j - x_i
		diff := new(btcec.ModNScalar).Set(&xi)
		diff.Negate().Add(&xj)
		den.Mul(diff)
	}
	if !found {
		return nil, fmt.Errorf("%w: member %d", ErrMissingCommitment,
			id)
	}

	// A zero denominator means a duplicate ID slipped through the sorted
	// commitment set.
	if den.IsZero() {
		return nil, ErrDuplicateCommitment
	}

	return num.Mul(den.InverseNonConst()), nil
}

// sortCommitments returns the commitment set sorted by member ID, rejecting
// duplicates and missing points.
func sortCommitments(
	commitments []NonceCommitment) ([]NonceCommitment, error) {

	if len(commitments) == 0 {
		return nil, fmt.Errorf("%w: empty commitment set",
			ErrMissingCommitment)
	}

	sorted := make([]NonceCommitment, len(commitments))
	copy(sorted, commitments)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})

	for i, commitment := range sorted {
		if commitment.Hiding == nil || commitment.Binding == nil {
			return nil, fmt.Errorf("%w: member %d",
				ErrMissingCommitment, commitment.ID)
		}
		if i > 0 && sorted[i-1].ID == commitment.ID {
			return nil, fmt.Errorf("%w: member %d",
				ErrDuplicateCommitment, commitment.ID)
		}
	}

	return sorted, nil
}
