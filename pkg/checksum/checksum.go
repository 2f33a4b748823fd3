// Package checksum implements the public check-digit algorithms used by
// synthetic identifiers: Luhn for payment cards, the SNILS mod-101 control
// number and the Kazakh IIN mod-11 check digit.
package checksum

import (
	"errors"
	"strings"
)

// ErrNotDigits is returned when a payload contains anything but ASCII digits
// or has the wrong length for the algorithm.
var ErrNotDigits = errors.New("payload must be a fixed-length digit string")

// SNILS payload and IIN payload lengths, without control digits.
const (
	SNILSPayloadLen = 9
	IINPayloadLen   = 11
)

func digits(s string) ([]int, bool) {
	if s == "" {
		return nil, false
	}
	out := make([]int, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return nil, false
		}
		out[i] = int(c - '0')
	}
	return out, true
}

// StripSeparators removes spaces and dashes, the only separators used by the
// formatted identifiers in this module.
func StripSeparators(s string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(s)
}

// ---------------------------------------------------------------------------
// Luhn
// ---------------------------------------------------------------------------

// LuhnCheckDigit returns the digit that, appended to payload, makes the whole
// number pass the Luhn test.
func LuhnCheckDigit(payload string) (int, error) {
	d, ok := digits(payload)
	if !ok {
		return 0, ErrNotDigits
	}
	sum := 0
	// The check digit will occupy position 0 from the right, so the rightmost
	// payload digit sits at an odd position and is doubled.
	for i := len(d) - 1; i >= 0; i-- {
		v := d[i]
		if (len(d)-1-i)%2 == 0 {
			v *= 2
			if v > 9 {
				v -= 9
			}
		}
		sum += v
	}
	return (10 - sum%10) % 10, nil
}

// LuhnValid reports whether number (separators allowed) passes the Luhn test.
func LuhnValid(number string) bool {
	d, ok := digits(StripSeparators(number))
	if !ok || len(d) < 2 {
		return false
	}
	sum := 0
	for i := len(d) - 1; i >= 0; i-- {
		v := d[i]
		if (len(d)-1-i)%2 == 1 {
			v *= 2
			if v > 9 {
				v -= 9
			}
		}
		sum += v
	}
	return sum%10 == 0
}

// ---------------------------------------------------------------------------
// SNILS
// ---------------------------------------------------------------------------

// SNILSControl computes the two-digit control number for a nine digit SNILS
// payload: the weighted sum with weights 9..1, reduced mod 101 with 100 and
// 101 mapping to 00.
func SNILSControl(payload string) (int, error) {
	d, ok := digits(payload)
	if !ok || len(d) != SNILSPayloadLen {
		return 0, ErrNotDigits
	}
	sum := 0
	for i, v := range d {
		sum += v * (SNILSPayloadLen - i)
	}
	switch {
	case sum < 100:
		return sum, nil
	case sum == 100 || sum == 101:
		return 0, nil
	}
	sum %= 101
	if sum == 100 {
		return 0, nil
	}
	return sum, nil
}

// SNILSValid reports whether s, formatted "XXX-XXX-XXX YY" or as eleven bare
// digits, carries the correct control number.
func SNILSValid(s string) bool {
	raw := StripSeparators(s)
	if len(raw) != SNILSPayloadLen+2 {
		return false
	}
	control, err := SNILSControl(raw[:SNILSPayloadLen])
	if err != nil {
		return false
	}
	got, ok := digits(raw[SNILSPayloadLen:])
	if !ok {
		return false
	}
	return got[0]*10+got[1] == control
}

// ---------------------------------------------------------------------------
// IIN (Kazakhstan)
// ---------------------------------------------------------------------------

var (
	iinWeightsFirst  = [IINPayloadLen]int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	iinWeightsSecond = [IINPayloadLen]int{3, 4, 5, 6, 7, 8, 9, 10, 11, 1, 2}
)

// IINCheckDigit computes the twelfth IIN digit. ok is false when both weight
// passes produce 10; such payloads are never issued.
func IINCheckDigit(payload string) (digit int, ok bool, err error) {
	d, valid := digits(payload)
	if !valid || len(d) != IINPayloadLen {
		return 0, false, ErrNotDigits
	}
	weigh := func(w [IINPayloadLen]int) int {
		sum := 0
		for i, v := range d {
			sum += v * w[i]
		}
		return sum % 11
	}
	if k := weigh(iinWeightsFirst); k != 10 {
		return k, true, nil
	}
	if k := weigh(iinWeightsSecond); k != 10 {
		return k, true, nil
	}
	return 0, false, nil
}

// IINValid reports whether s is a twelve digit IIN with a correct check digit.
func IINValid(s string) bool {
	if len(s) != IINPayloadLen+1 {
		return false
	}
	k, ok, err := IINCheckDigit(s[:IINPayloadLen])
	if err != nil || !ok {
		return false
	}
	return int(s[IINPayloadLen]-'0') == k
}
