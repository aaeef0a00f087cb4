package eth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/layer-3/zeoauth/core"
)

func TestNormalizeAddress(t *testing.T) {
	const checksummed = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

	t.Run("valid", func(t *testing.T) {
		tests := []struct {
			name  string
			input string
		}{
			{"checksummed", checksummed},
			{"lowercase", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"},
			{"uppercase digits", "0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED"},
			{"no prefix", "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"},
			{"surrounding spaces", "  " + checksummed + "\n"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := NormalizeAddress(tt.input)

				require.NoError(t, err)
				require.Equal(t, checksummed, got)
			})
		}
	})

	t.Run("invalid", func(t *testing.T) {
		tests := []struct {
			name  string
			input string
		}{
			{"empty", ""},
			{"too short", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1bea"},
			{"not hex", "0xZZaeb6053f3e94c9b9a09f33669435e7ef1beaed"},
			{"bad checksum", "0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := NormalizeAddress(tt.input)

				require.ErrorIs(t, err, core.ErrInvalidAddress)
			})
		}
	})
}

func TestSameAddress(t *testing.T) {
	require.True(t, SameAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"))
	require.False(t, SameAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"))
	require.False(t, SameAddress("not-an-address", "not-an-address"))
}
