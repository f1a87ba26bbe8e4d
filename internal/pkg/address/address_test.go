package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bimakw/deposit-tracker/internal/domain"
)

func TestNormalize(t *testing.T) {
	t.Run("should lowercase a checksummed address", func(t *testing.T) {
		got, err := Normalize("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
		require.NoError(t, err)
		assert.Equal(t, "0x2791bca1f2de4661ed88a30c99a7a9449aa84174", got)
	})

	t.Run("should trim surrounding whitespace", func(t *testing.T) {
		got, err := Normalize("  0xc2132d05d31c914a87c6611c10748aeb04b58e8f \n")
		require.NoError(t, err)
		assert.Equal(t, "0xc2132d05d31c914a87c6611c10748aeb04b58e8f", got)
	})

	t.Run("should reject malformed input", func(t *testing.T) {
		for _, in := range []string{"", "0x", "0x1234", "2791Bca1f2de4661ED88A30C99A7a9449Aa84174", "0xZZ91Bca1f2de4661ED88A30C99A7a9449Aa84174"} {
			_, err := Normalize(in)
			assert.ErrorIs(t, err, domain.ErrValidation, "input %q", in)
		}
	})
}

func TestShort(t *testing.T) {
	assert.Equal(t, "0x12345678...abcdef", Short("0x1234567890000000000000000000000000abcdef"))
	assert.Equal(t, "0xabc", Short("0xabc"))
}

func TestIsTxHash(t *testing.T) {
	assert.True(t, IsTxHash("0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"))
	assert.False(t, IsTxHash("5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"))
	assert.False(t, IsTxHash("0x5c504e"))
	assert.False(t, IsTxHash("0xzz504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"))
}
