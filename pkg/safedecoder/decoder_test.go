package safedecoder

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const (
	ownerA = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	ownerB = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

func packCall(t *testing.T, definition, name string, args ...interface{}) []byte {
	t.Helper()

	parsed, err := abi.JSON(strings.NewReader(definition))
	require.NoError(t, err)

	data, err := parsed.Pack(name, args...)
	require.NoError(t, err)

	return data
}

func TestDecodeSetup(t *testing.T) {
	decoder, err := New()
	require.NoError(t, err)

	data := packCall(t, safeABIv1_1_1, "setup",
		[]common.Address{common.HexToAddress(ownerA), common.HexToAddress(ownerB)},
		big.NewInt(2),
		common.Address{},
		[]byte{},
		common.Address{},
		common.Address{},
		big.NewInt(0),
		common.Address{},
	)

	name, arguments, err := decoder.Decode("", data)
	require.NoError(t, err)
	require.Equal(t, "setup", name)
	require.Equal(t, []interface{}{ownerA, ownerB}, arguments["_owners"])
	require.Equal(t, "2", arguments["_threshold"])
}

func TestDecodeOldSetup(t *testing.T) {
	decoder, err := New()
	require.NoError(t, err)

	data := packCall(t, safeABIv1_0_0, "setup",
		[]common.Address{common.HexToAddress(ownerA)},
		big.NewInt(1),
		common.Address{},
		[]byte{},
		common.Address{},
		big.NewInt(0),
		common.Address{},
	)

	name, arguments, err := decoder.Decode("", data)
	require.NoError(t, err)
	require.Equal(t, "setup", name)
	require.Equal(t, []interface{}{ownerA}, arguments["_owners"])
}

func TestDecodeAddOwnerWithThreshold(t *testing.T) {
	decoder, err := New()
	require.NoError(t, err)

	data := packCall(t, safeABIv1_1_1, "addOwnerWithThreshold",
		common.HexToAddress(ownerB), big.NewInt(2))

	name, arguments, err := decoder.Decode("", data)
	require.NoError(t, err)
	require.Equal(t, "addOwnerWithThreshold", name)
	require.Equal(t, ownerB, arguments["owner"])
	require.Equal(t, "2", arguments["_threshold"])
}

func TestDecodeUnknownSelector(t *testing.T) {
	decoder, err := New()
	require.NoError(t, err)

	_, _, err = decoder.Decode("", []byte{0xde, 0xad, 0xbe, 0xef, 0x00})
	require.ErrorIs(t, err, ErrNotDecodable)
}

func TestDecodeShortPayload(t *testing.T) {
	decoder, err := New()
	require.NoError(t, err)

	_, _, err = decoder.Decode("", []byte{0x6a})
	require.ErrorIs(t, err, ErrNotDecodable)
}
