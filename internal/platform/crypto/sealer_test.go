package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealerRoundTrip(t *testing.T) {
	sealer, err := NewSealer(strings.Repeat("ab", 32))
	require.NoError(t, err)
	require.True(t, sealer.Configured())

	sealed, err := sealer.Seal([]byte("%PDF-1.3 payslip"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "payslip")

	plain, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.3 payslip", string(plain))
}

func TestSealerPassThroughWithoutKey(t *testing.T) {
	sealer, err := NewSealer("")
	require.NoError(t, err)
	assert.False(t, sealer.Configured())

	out, err := sealer.Seal([]byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", string(out))
}

func TestSealerRejectsShortKey(t *testing.T) {
	_, err := NewSealer("too-short")
	assert.Error(t, err)
}

func TestSealerRejectsTamperedInput(t *testing.T) {
	sealer, err := NewSealer(strings.Repeat("cd", 32))
	require.NoError(t, err)

	_, err = sealer.Open([]byte("x"))
	assert.ErrorIs(t, err, ErrCiphertextTooShort)

	sealed, err := sealer.Seal([]byte("data"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff
	_, err = sealer.Open(sealed)
	assert.Error(t, err)
}

func TestSealerDerivesKeyFromPassphrase(t *testing.T) {
	passphrase := "correct horse battery staple payroll archive"
	a, err := NewSealer(passphrase)
	require.NoError(t, err)
	b, err := NewSealer(passphrase)
	require.NoError(t, err)

	sealed, err := a.Seal([]byte("payslip"))
	require.NoError(t, err)
	plain, err := b.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "payslip", string(plain))

	other, err := NewSealer(passphrase + "!")
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.Error(t, err)
}
