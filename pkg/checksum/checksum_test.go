package checksum

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLuhnCheckDigit(t *testing.T) {
	d, err := LuhnCheckDigit("7992739871")
	require.NoError(t, err)
	assert.Equal(t, 3, d)

	d, err = LuhnCheckDigit("411111111111111")
	require.NoError(t, err)
	assert.Equal(t, 1, d)
}

func TestLuhnCheckDigit_RejectsNonDigits(t *testing.T) {
	_, err := LuhnCheckDigit("4111 1111")
	assert.ErrorIs(t, err, ErrNotDigits)

	_, err = LuhnCheckDigit("")
	assert.ErrorIs(t, err, ErrNotDigits)
}

func TestLuhnValid(t *testing.T) {
	assert.True(t, LuhnValid("4111111111111111"))
	assert.True(t, LuhnValid("4111 1111 1111 1111"))
	assert.False(t, LuhnValid("4111111111111112"))
	assert.False(t, LuhnValid("41x1111111111111"))
	assert.False(t, LuhnValid("0"))
}

func TestLuhn_RoundTripEveryPrefix(t *testing.T) {
	for i := 0; i < 500; i++ {
		payload := fmt.Sprintf("220220%09d", i*7919)
		d, err := LuhnCheckDigit(payload)
		require.NoError(t, err)
		assert.True(t, LuhnValid(fmt.Sprintf("%s%d", payload, d)), payload)
	}
}

func TestSNILSControl(t *testing.T) {
	c, err := SNILSControl("112233445")
	require.NoError(t, err)
	assert.Equal(t, 95, c)

	c, err = SNILSControl("000000000")
	require.NoError(t, err)
	assert.Equal(t, 0, c)
}

func TestSNILSControl_Reduction(t *testing.T) {
	// 999999999 sums to 405; 405 mod 101 = 1.
	c, err := SNILSControl("999999999")
	require.NoError(t, err)
	assert.Equal(t, 1, c)

	for _, payload := range []string{"111111111", "123456789", "500000001"} {
		c, err := SNILSControl(payload)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, c, 0)
		assert.Less(t, c, 100)
	}
}

func TestSNILSControl_Exact100And101(t *testing.T) {
	c, err := SNILSControl("322222222") // 27+16+14+12+10+8+6+4+2 = 99
	require.NoError(t, err)
	assert.Equal(t, 99, c)

	c, err = SNILSControl("332222222") // 27+24+14+12+10+8+6+4+2 = 107 -> 6
	require.NoError(t, err)
	assert.Equal(t, 6, c)

	c, err = SNILSControl("422222222") // 36+16+14+12+10+8+6+4+2 = 108 -> 7
	require.NoError(t, err)
	assert.Equal(t, 7, c)

	c, err = SNILSControl("222222223") // 18+16+14+12+10+8+6+4+3 = 91
	require.NoError(t, err)
	assert.Equal(t, 91, c)

	c, err = SNILSControl("312222223") // 27+8+14+12+10+8+6+4+3 = 92
	require.NoError(t, err)
	assert.Equal(t, 92, c)

	c, err = SNILSControl("330222223") // 27+24+0+12+10+8+6+4+3 = 94
	require.NoError(t, err)
	assert.Equal(t, 94, c)

	c, err = SNILSControl("332222220") // 27+24+14+12+10+8+6+4+0 = 105 -> 4
	require.NoError(t, err)
	assert.Equal(t, 4, c)

	c, err = SNILSControl("322222230") // 27+16+14+12+10+8+6+6+0 = 99
	require.NoError(t, err)
	assert.Equal(t, 99, c)

	c, err = SNILSControl("322222231") // 99 + 1 = 100 -> 00
	require.NoError(t, err)
	assert.Equal(t, 0, c)

	c, err = SNILSControl("322222232") // 99 + 2 = 101 -> 00
	require.NoError(t, err)
	assert.Equal(t, 0, c)
}

func TestSNILSValid(t *testing.T) {
	assert.True(t, SNILSValid("112-233-445 95"))
	assert.True(t, SNILSValid("11223344595"))
	assert.False(t, SNILSValid("112-233-445 96"))
	assert.False(t, SNILSValid("112-233-445"))
	assert.False(t, SNILSValid("11a-233-445 95"))
}

func TestIINCheckDigit(t *testing.T) {
	k, ok, err := IINCheckDigit("85010130000")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5, k)
	assert.True(t, IINValid("850101300005"))
	assert.False(t, IINValid("850101300006"))
}

func TestIINCheckDigit_RoundTrip(t *testing.T) {
	issued := 0
	for i := 0; i < 2000; i++ {
		payload := fmt.Sprintf("9001013%04d", i)
		k, ok, err := IINCheckDigit(payload)
		require.NoError(t, err)
		if !ok {
			continue
		}
		issued++
		assert.True(t, IINValid(fmt.Sprintf("%s%d", payload, k)), payload)
	}
	assert.Greater(t, issued, 1900)
}

func TestIINCheckDigit_RejectsBadLength(t *testing.T) {
	_, _, err := IINCheckDigit("123")
	assert.ErrorIs(t, err, ErrNotDigits)
	assert.False(t, IINValid("12345678901"))
}
