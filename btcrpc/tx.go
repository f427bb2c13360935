package btcrpc

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

// TxRef names a transaction handed to the funding pipeline, either as a raw
// hex string or as an already decoded wire message. Hex input is forwarded
// to the node byte for byte, so a caller that was itself handed a serialized
// transaction never risks a re-encode changing it.
type TxRef struct {
	hex string
	tx  *wire.MsgTx
}

// TxRefFromHex wraps an already serialized transaction. The string passes
// through untouched; the node is the authority on whether it decodes.
func TxRefFromHex(txHex string) TxRef {
	return TxRef{hex: txHex}
}

// TxRefFromTx wraps a structured transaction for serialization at call time.
func TxRefFromTx(tx *wire.MsgTx) TxRef {
	return TxRef{tx: tx}
}

// serialize produces the hex form sent over RPC.
func (r TxRef) serialize() (string, error) {
	if r.tx == nil {
		return r.hex, nil
	}

	return EncodeTx(r.tx)
}

// EncodeTx serializes a transaction into the hex encoding bitcoind's raw
// transaction RPCs consume.
func EncodeTx(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("unable to serialize tx: %w", err)
	}

	return hex.EncodeToString(buf.Bytes()), nil
}

// DecodeTx parses the hex encoding of a transaction as produced by bitcoind
// or EncodeTx.
//
// Decoding first attempts the pre-segwit encoding and only falls back to the
// extended encoding if that fails or leaves trailing bytes. This mirrors how
// bitcoind itself disambiguates the two: a transaction funded before any
// inputs are attached has an input count of zero, which in the extended
// encoding is indistinguishable from the segwit marker byte, so probing in
// the opposite order would misread it.
func DecodeTx(txHex string) (*wire.MsgTx, error) {
	rawTx, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, fmt.Errorf("invalid tx hex: %w", err)
	}

	legacyReader := bytes.NewReader(rawTx)
	legacyTx := &wire.MsgTx{}
	err = legacyTx.DeserializeNoWitness(legacyReader)
	if err == nil && legacyReader.Len() == 0 {
		return legacyTx, nil
	}

	witnessReader := bytes.NewReader(rawTx)
	witnessTx := &wire.MsgTx{}
	if err := witnessTx.Deserialize(witnessReader); err != nil {
		return nil, fmt.Errorf("unable to decode tx: %w", err)
	}
	if witnessReader.Len() != 0 {
		return nil, fmt.Errorf("tx encoding has %d trailing bytes",
			witnessReader.Len())
	}

	return witnessTx, nil
}
