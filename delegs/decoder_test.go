package delegs_test

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angerman/encoins-relay/delegs"
	"github.com/angerman/encoins-relay/pkg/cardano"
)

func TestDecoderBehavior(t *testing.T) {
	t.Parallel()

	t.Run("it decodes an inline datum declaration", func(t *testing.T) {
		t.Parallel()

		// Arrange
		tx := transaction("tx1", 412, signedBy("key1"))
		out := outputWithInlineDatum("stake1", declarationDatum(t, "key1", "relay.example"))
		decoder := signatureCheckingDecoder(noResolver())

		// Act
		d, err := decoder.Decode(t.Context(), tx, out)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "stake1", d.Credential)
		assert.Equal(t, hex.EncodeToString([]byte("key1")), d.SignerKey)
		assert.Equal(t, "tx1#0", d.TxOutRef)
		assert.Equal(t, uint64(412), d.CreatedSlot)
		assert.Equal(t, "relay.example", d.Endpoint)
	})

	t.Run("it skips outputs without a stake credential", func(t *testing.T) {
		t.Parallel()

		tx := transaction("tx1", 412, signedBy("key1"))
		out := outputWithInlineDatum("", declarationDatum(t, "key1", "relay.example"))
		decoder := signatureCheckingDecoder(noResolver())

		_, err := decoder.Decode(t.Context(), tx, out)

		assert.ErrorIs(t, err, delegs.ErrNoStakeCredential)
	})

	t.Run("it skips outputs without datum content", func(t *testing.T) {
		t.Parallel()

		tx := transaction("tx1", 412, signedBy("key1"))
		out := cardano.TxOutput{Address: "addr1", StakeKey: "stake1"}
		decoder := signatureCheckingDecoder(noResolver())

		_, err := decoder.Decode(t.Context(), tx, out)

		assert.ErrorIs(t, err, delegs.ErrNoDatum)
	})

	t.Run("it skips malformed datum shapes", func(t *testing.T) {
		t.Parallel()

		shapes := map[string]string{
			"wrong protocol tag": taggedDatum(t, 121, [][]byte{[]byte("OTHER"), []byte("Delegate"), []byte("key1"), []byte("relay.example")}),
			"wrong operation":    taggedDatum(t, 121, [][]byte{[]byte("ENCOINS"), []byte("Undelegate"), []byte("key1"), []byte("relay.example")}),
			"wrong arity":        taggedDatum(t, 121, [][]byte{[]byte("ENCOINS"), []byte("Delegate"), []byte("key1")}),
			"wrong constructor":  taggedDatum(t, 122, [][]byte{[]byte("ENCOINS"), []byte("Delegate"), []byte("key1"), []byte("relay.example")}),
			"not cbor":           "deadbeef",
			"not hex":            "zz",
		}
		decoder := signatureCheckingDecoder(noResolver())

		for name, datum := range shapes {
			tx := transaction("tx1", 412, signedBy("key1"))
			out := outputWithInlineDatum("stake1", datum)

			_, err := decoder.Decode(t.Context(), tx, out)

			assert.ErrorIs(t, err, delegs.ErrDatumShape, "shape: %s", name)
		}
	})

	t.Run("it resolves a datum embedded in the transaction body", func(t *testing.T) {
		t.Parallel()

		tx := transaction("tx1", 412, signedBy("key1"))
		tx.Datums = map[string]string{"h1": declarationDatum(t, "key1", "relay.example")}
		out := outputWithDatumHash("stake1", "h1")
		decoder := signatureCheckingDecoder(noResolver())

		d, err := decoder.Decode(t.Context(), tx, out)

		require.NoError(t, err)
		assert.Equal(t, "relay.example", d.Endpoint)
	})

	t.Run("it resolves a hash-referenced datum via the indexer", func(t *testing.T) {
		t.Parallel()

		tx := transaction("tx1", 412, signedBy("key1"))
		out := outputWithDatumHash("stake1", "h1")
		raw, err := hex.DecodeString(declarationDatum(t, "key1", "relay.example"))
		require.NoError(t, err)
		decoder := signatureCheckingDecoder(resolverWithDatum("h1", raw))

		d, err := decoder.Decode(t.Context(), tx, out)

		require.NoError(t, err)
		assert.Equal(t, "relay.example", d.Endpoint)
	})

	t.Run("it skips the output when datum resolution fails", func(t *testing.T) {
		t.Parallel()

		tx := transaction("tx1", 412, signedBy("key1"))
		out := outputWithDatumHash("stake1", "h1")

		for name, resolver := range map[string]*fakeResolver{
			"network failure": failingResolver(),
			"unknown datum":   noResolver(),
		} {
			decoder := signatureCheckingDecoder(resolver)

			_, err := decoder.Decode(t.Context(), tx, out)

			assert.ErrorIs(t, err, delegs.ErrDatumUnavailable, "resolver: %s", name)
		}
	})

	t.Run("it rejects declarations not signed by the declared key", func(t *testing.T) {
		t.Parallel()

		tx := transaction("tx1", 412, signedBy("otherkey"))
		out := outputWithInlineDatum("stake1", declarationDatum(t, "key1", "relay.example"))
		decoder := signatureCheckingDecoder(noResolver())

		_, err := decoder.Decode(t.Context(), tx, out)

		assert.ErrorIs(t, err, delegs.ErrNotSigned)
	})

	t.Run("it rejects invalid endpoints when signature checking", func(t *testing.T) {
		t.Parallel()

		tx := transaction("tx1", 412, signedBy("key1"))
		out := outputWithInlineDatum("stake1", declarationDatum(t, "key1", "nohost"))
		decoder := signatureCheckingDecoder(noResolver())

		_, err := decoder.Decode(t.Context(), tx, out)

		assert.ErrorIs(t, err, delegs.ErrBadEndpoint)
	})

	t.Run("it accepts unsigned declarations when checking is disabled", func(t *testing.T) {
		t.Parallel()

		tx := transaction("tx1", 412) // no signatories at all
		out := outputWithInlineDatum("stake1", declarationDatum(t, "key1", "nohost"))
		decoder := delegs.NewDecoder(noResolver(), testFingerprint, false)

		d, err := decoder.Decode(t.Context(), tx, out)

		require.NoError(t, err)
		assert.Equal(t, "nohost", d.Endpoint)
	})
}

// Test data builders

// testFingerprint stands in for the key-hash primitive; transactions built
// with signedBy carry matching values.
func testFingerprint(pubKey []byte) string {
	return "fp-" + string(pubKey)
}

func signedBy(key string) string {
	return testFingerprint([]byte(key))
}

func transaction(hash string, slot uint64, signatories ...string) *cardano.Transaction {
	return &cardano.Transaction{
		Hash:             hash,
		Slot:             slot,
		ExtraSignatories: signatories,
	}
}

func outputWithInlineDatum(stakeKey, datum string) cardano.TxOutput {
	return cardano.TxOutput{
		Address:     "addr1",
		OutputIndex: 0,
		StakeKey:    stakeKey,
		InlineDatum: datum,
	}
}

func outputWithDatumHash(stakeKey, hash string) cardano.TxOutput {
	return cardano.TxOutput{
		Address:     "addr1",
		OutputIndex: 0,
		StakeKey:    stakeKey,
		DataHash:    hash,
	}
}

// declarationDatum builds the hex CBOR of a well-formed declaration record
func declarationDatum(t *testing.T, key, endpoint string) string {
	t.Helper()
	return taggedDatum(t, 121, [][]byte{[]byte("ENCOINS"), []byte("Delegate"), []byte(key), []byte(endpoint)})
}

// taggedDatum builds hex CBOR for an arbitrary tagged record
func taggedDatum(t *testing.T, tag uint64, fields [][]byte) string {
	t.Helper()
	content := make([]any, len(fields))
	for i, f := range fields {
		content[i] = f
	}
	raw, err := cbor.Marshal(cbor.Tag{Number: tag, Content: content})
	require.NoError(t, err)
	return hex.EncodeToString(raw)
}

// fakeResolver implements delegs.DatumResolver
type fakeResolver struct {
	datums map[string][]byte
	err    error
}

func noResolver() *fakeResolver {
	return &fakeResolver{}
}

func resolverWithDatum(hash string, raw []byte) *fakeResolver {
	return &fakeResolver{datums: map[string][]byte{hash: raw}}
}

func failingResolver() *fakeResolver {
	return &fakeResolver{err: fmt.Errorf("indexer unreachable: %w", errors.New("connection refused"))}
}

func (f *fakeResolver) DatumByHash(_ context.Context, hash string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.datums[hash], nil
}

func signatureCheckingDecoder(resolver *fakeResolver) *delegs.Decoder {
	return delegs.NewDecoder(resolver, testFingerprint, true)
}
