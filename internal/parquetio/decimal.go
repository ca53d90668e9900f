package parquetio

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Decimal is an exact Delta decimal value, Unscaled * 10^-Scale.
type Decimal struct {
	unscaled *big.Int
	scale    int
}

// NewDecimal copies unscaled; nil is zero
func NewDecimal(unscaled *big.Int, scale int) Decimal {
	d := Decimal{unscaled: new(big.Int), scale: scale}
	if unscaled != nil {
		d.unscaled.Set(unscaled)
	}
	return d
}

// ParseDecimal reads the decimal text s at the given scale. Text with more
// fractional digits than scale allows is rejected.
func ParseDecimal(s string, scale int) (Decimal, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(s))
	if !ok {
		return Decimal{}, fmt.Errorf("invalid decimal %q", s)
	}
	num := new(big.Int).Mul(r.Num(), pow10(scale))
	unscaled, rem := new(big.Int).QuoRem(num, r.Denom(), new(big.Int))
	if rem.Sign() != 0 {
		return Decimal{}, fmt.Errorf("decimal %q has more than %d fractional digits", s, scale)
	}
	return Decimal{unscaled: unscaled, scale: scale}, nil
}

// DecimalType extracts precision and scale from "decimal(p,s)"
func DecimalType(deltaType string) (precision, scale int, ok bool) {
	if !strings.HasPrefix(deltaType, "decimal(") || !strings.HasSuffix(deltaType, ")") {
		return 0, 0, false
	}
	p, s, found := strings.Cut(strings.TrimSuffix(strings.TrimPrefix(deltaType, "decimal("), ")"), ",")
	if !found {
		return 0, 0, false
	}
	precision, err := strconv.Atoi(strings.TrimSpace(p))
	if err != nil {
		return 0, 0, false
	}
	scale, err = strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, 0, false
	}
	return precision, scale, true
}

func (d Decimal) Unscaled() *big.Int {
	if d.unscaled == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(d.unscaled)
}

func (d Decimal) Scale() int { return d.scale }

// Rat returns the exact value
func (d Decimal) Rat() *big.Rat {
	return new(big.Rat).SetFrac(d.Unscaled(), pow10(d.scale))
}

// Float64 returns the nearest float64
func (d Decimal) Float64() float64 {
	f, _ := d.Rat().Float64()
	return f
}

func (d Decimal) String() string {
	unscaled := d.Unscaled()
	digits := new(big.Int).Abs(unscaled).String()
	if d.scale > 0 {
		if len(digits) <= d.scale {
			digits = strings.Repeat("0", d.scale-len(digits)+1) + digits
		}
		digits = digits[:len(digits)-d.scale] + "." + digits[len(digits)-d.scale:]
	}
	if unscaled.Sign() < 0 {
		return "-" + digits
	}
	return digits
}

// MarshalJSON writes the value as a JSON number without rounding
func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(d.String()), nil
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
