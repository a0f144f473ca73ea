package delegs

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"

	"github.com/angerman/encoins-relay/pkg/cardano"
)

// Skip reasons returned by Decoder.Decode. Every Decode error means "this
// output carries no usable declaration"; none of them aborts a scan cycle.
var (
	ErrNoStakeCredential = errors.New("output has no stake credential")
	ErrNoDatum           = errors.New("output carries no datum")
	ErrDatumUnavailable  = errors.New("datum could not be resolved")
	ErrDatumShape        = errors.New("datum is not a delegation declaration")
	ErrNotSigned         = errors.New("declaration not signed by declared key")
	ErrBadEndpoint       = errors.New("declared endpoint invalid")
)

// Fixed protocol tags of a delegation declaration datum.
var (
	protocolTag  = []byte("ENCOINS")
	operationTag = []byte("Delegate")
)

// delegationConstr is the CBOR tag of a constructor-0 record.
const delegationConstr = 121

// DatumResolver resolves a hash-referenced datum to raw CBOR bytes
type DatumResolver interface {
	DatumByHash(ctx context.Context, hash string) ([]byte, error)
}

// FingerprintFunc derives the hex key hash of a raw public key
type FingerprintFunc func(pubKey []byte) string

// Decoder extracts validated delegation declarations from transaction outputs
// -----------------------------------------------------------------------------
type Decoder struct {
	resolver       DatumResolver
	fingerprint    FingerprintFunc
	checkSignature bool
}

// NewDecoder constructs a Decoder. When checkSignature is set, a declaration
// is only accepted if the declaring key is among the transaction's extra
// signatories and the declared endpoint is valid.
func NewDecoder(resolver DatumResolver, fingerprint FingerprintFunc, checkSignature bool) *Decoder {
	return &Decoder{
		resolver:       resolver,
		fingerprint:    fingerprint,
		checkSignature: checkSignature,
	}
}

// Decode extracts a delegation declaration from a single transaction output.
// A non-nil error always classifies a local skip, never a cycle failure;
// see the sentinel skip reasons above.
func (d *Decoder) Decode(ctx context.Context, tx *cardano.Transaction, out cardano.TxOutput) (Delegation, error) {
	if out.StakeKey == "" {
		return Delegation{}, ErrNoStakeCredential
	}

	raw, err := d.datum(ctx, tx, out)
	if err != nil {
		return Delegation{}, err
	}

	signerKey, endpoint, err := parseDeclaration(raw)
	if err != nil {
		return Delegation{}, err
	}

	if d.checkSignature {
		if !slices.Contains(tx.ExtraSignatories, d.fingerprint(signerKey)) {
			return Delegation{}, ErrNotSigned
		}
		if !IsValidEndpoint(endpoint) {
			return Delegation{}, ErrBadEndpoint
		}
	}

	return Delegation{
		Credential:  out.StakeKey,
		SignerKey:   hex.EncodeToString(signerKey),
		TxOutRef:    fmt.Sprintf("%s#%d", tx.Hash, out.OutputIndex),
		CreatedSlot: tx.Slot,
		Endpoint:    endpoint,
	}, nil
}

// datum returns the output's raw datum bytes: inline, embedded in the
// transaction body, or resolved by hash through the indexer. A resolution
// failure skips this output only, the cycle continues.
func (d *Decoder) datum(ctx context.Context, tx *cardano.Transaction, out cardano.TxOutput) ([]byte, error) {
	switch {
	case out.InlineDatum != "":
		raw, err := hex.DecodeString(out.InlineDatum)
		if err != nil {
			return nil, fmt.Errorf("%w: inline datum: %v", ErrDatumShape, err)
		}
		return raw, nil

	case out.DataHash != "":
		if body, ok := tx.Datums[out.DataHash]; ok {
			raw, err := hex.DecodeString(body)
			if err != nil {
				return nil, fmt.Errorf("%w: body datum: %v", ErrDatumShape, err)
			}
			return raw, nil
		}
		raw, err := d.resolver.DatumByHash(ctx, out.DataHash)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatumUnavailable, err)
		}
		if raw == nil {
			return nil, ErrDatumUnavailable
		}
		return raw, nil

	default:
		return nil, ErrNoDatum
	}
}

// parseDeclaration parses a datum as the fixed 4-field declaration record:
// constructor 0 of (protocol tag, operation tag, signer key, endpoint).
func parseDeclaration(raw []byte) (signerKey []byte, endpoint string, err error) {
	var tag cbor.Tag
	if err := cbor.Unmarshal(raw, &tag); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDatumShape, err)
	}
	if tag.Number != delegationConstr {
		return nil, "", ErrDatumShape
	}

	fields, ok := tag.Content.([]any)
	if !ok || len(fields) != 4 {
		return nil, "", ErrDatumShape
	}

	raws := make([][]byte, len(fields))
	for i, field := range fields {
		b, ok := field.([]byte)
		if !ok {
			return nil, "", ErrDatumShape
		}
		raws[i] = b
	}

	if !bytes.Equal(raws[0], protocolTag) || !bytes.Equal(raws[1], operationTag) {
		return nil, "", ErrDatumShape
	}
	if !utf8.Valid(raws[3]) {
		return nil, "", ErrDatumShape
	}

	return raws[2], string(raws[3]), nil
}
