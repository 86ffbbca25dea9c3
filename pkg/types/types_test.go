package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressHexRoundTrip(t *testing.T) {
	var a Address
	for i := range a {
		a[i] = byte(i)
	}

	parsed, err := HexToAddress(a.Hex())
	require.NoError(t, err)
	require.Equal(t, a, parsed)

	// 0x prefix is accepted too.
	parsed, err = HexToAddress("0x" + a.Hex())
	require.NoError(t, err)
	require.Equal(t, a, parsed)
}

func TestAddressHexRejectsBadInput(t *testing.T) {
	_, err := HexToAddress("zz")
	require.Error(t, err)

	_, err = HexToAddress("0011")
	require.Error(t, err)
}

func TestBytesToAddressPadsAndTruncates(t *testing.T) {
	short := BytesToAddress([]byte{0xab})
	require.Equal(t, byte(0xab), short[31])
	require.True(t, short[0] == 0)

	long := make([]byte, 40)
	long[39] = 0xcd
	truncated := BytesToAddress(long)
	require.Equal(t, byte(0xcd), truncated[31])
}

func TestSignatureJSONIsLowercaseHex(t *testing.T) {
	var s Signature
	s[0] = 0xAB
	s[63] = 0x01

	data, err := json.Marshal(s)
	require.NoError(t, err)
	require.Equal(t, `"ab`, string(data[:3]))

	var decoded Signature
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, s, decoded)
}

func TestSignatureFromBytesLength(t *testing.T) {
	_, err := SignatureFromBytes(make([]byte, 63))
	require.Error(t, err)

	sig, err := SignatureFromBytes(make([]byte, 64))
	require.NoError(t, err)
	require.True(t, sig.IsZero())
}
