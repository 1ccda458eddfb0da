package normalize

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// EtherDecimals is the number of fractional decimal digits in one ether.
const EtherDecimals = 18

// ErrInvalidAmount is returned by ParseUnits for malformed decimal strings.
var ErrInvalidAmount = errors.New("invalid decimal amount")

// FormatUnits renders v, a fixed-point integer with the given number of
// decimals, as a decimal string. Trailing fractional zeros are trimmed but at
// least one fractional digit is kept, so 10^18 with 18 decimals is "1.0".
// A nil value formats as zero.
func FormatUnits(v *big.Int, decimals int) string {
	if v == nil {
		v = new(big.Int)
	}
	neg := v.Sign() < 0
	digits := new(big.Int).Abs(v).String()

	if decimals > 0 {
		if len(digits) <= decimals {
			digits = strings.Repeat("0", decimals-len(digits)+1) + digits
		}
	}
	whole, frac := digits, ""
	if decimals > 0 {
		whole, frac = digits[:len(digits)-decimals], digits[len(digits)-decimals:]
	}
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		frac = "0"
	}

	out := whole + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}

// ParseUnits converts a decimal string into a fixed-point integer with the
// given number of decimals. The conversion is exact: a fractional part longer
// than decimals is accepted only if the excess digits are zero.
func ParseUnits(s string, decimals int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg, s = true, s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !allDigits(whole) || !allDigits(frac) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if len(frac) > decimals {
		if strings.Trim(frac[decimals:], "0") != "" {
			return nil, fmt.Errorf("%w: %q has more than %d fractional digits", ErrInvalidAmount, s, decimals)
		}
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", decimals-len(frac))

	digits := strings.TrimLeft(whole+frac, "0")
	if digits == "" {
		return new(big.Int), nil
	}
	out, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if neg {
		out.Neg(out)
	}
	return out, nil
}

// FormatEther is FormatUnits with EtherDecimals.
func FormatEther(wei *big.Int) string { return FormatUnits(wei, EtherDecimals) }

// ParseEther is ParseUnits with EtherDecimals.
func ParseEther(s string) (*big.Int, error) { return ParseUnits(s, EtherDecimals) }

// ShortAddress returns the display form "0x1234...abcd" of an account, or
// "Unknown" for an empty one. Strings too short to abbreviate are returned
// unchanged.
func ShortAddress(addr string) string {
	if addr == "" {
		return "Unknown"
	}
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
