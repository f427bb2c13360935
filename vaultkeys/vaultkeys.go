// Package vaultkeys exposes the fixed public keys of the vault deployment
// and helpers to derive the Taproot addresses funds are paid to. The keys
// are compile-time constants on purpose: a mismatch between operators is a
// configuration error that should surface the moment an address is derived,
// not after funds have moved.
package vaultkeys

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	secp "github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const (
	// ProtocolPubKeyHex is the compressed public key of the vault
	// protocol itself. Spends authorized by the committee ultimately pay
	// into the Taproot address derived from this key.
	ProtocolPubKeyHex = "02f9308a019258c31049344f85f89d5229b531c845" +
		"836f99b08601f113bce036f9"

	// FeePubKeyHex is the compressed public key collecting the protocol
	// fee output attached to every authorized spend.
	FeePubKeyHex = "02dff1d77f2a671c5f36183726db2341be58feae1da2dec" +
		"ed843240f7b502ba659"
)

// ParsePubKey decodes a hex-encoded compressed public key.
func ParsePubKey(pubKeyHex string) (*btcec.PublicKey, error) {
	keyBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid public key hex: %w", err)
	}

	pubKey, err := btcec.ParsePubKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}

	return pubKey, nil
}

// ProtocolPubKey returns the parsed vault protocol public key.
func ProtocolPubKey() (*btcec.PublicKey, error) {
	return ParsePubKey(ProtocolPubKeyHex)
}

// FeePubKey returns the parsed protocol fee public key.
func FeePubKey() (*btcec.PublicKey, error) {
	return ParsePubKey(FeePubKeyHex)
}

// HasEvenY returns true if the passed public key serializes with the even-y
// compressed format prefix. The x-only encoding used by Taproot carries no
// parity bit, so every key that ends up in an output script must satisfy
// this before its x-only form can be trusted.
func HasEvenY(pubKey *btcec.PublicKey) bool {
	return pubKey.SerializeCompressed()[0] ==
		secp.PubKeyFormatCompressedEven
}

// TaprootAddress derives the key-path-only (BIP 86) Taproot address for the
// given internal key on the given network.
func TaprootAddress(pubKey *btcec.PublicKey,
	netParams *chaincfg.Params) (*btcutil.AddressTaproot, error) {

	taprootKey := txscript.ComputeTaprootKeyNoScript(pubKey)

	addr, err := btcutil.NewAddressTaproot(
		schnorr.SerializePubKey(taprootKey), netParams,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to derive taproot address: %w",
			err)
	}

	return addr, nil
}
