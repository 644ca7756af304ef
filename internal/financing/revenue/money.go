package revenue

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// MinorUnitsPerMajor is the number of minor currency units in one major unit
const MinorUnitsPerMajor = 100

// Money is an amount in minor currency units. JSON encodes it as a decimal number of major units.
type Money int64

// FromFloat converts a major-unit amount into Money, rounding half-up to the nearest minor unit
func FromFloat(v float64) Money {
	return Money(math.Floor(v*MinorUnitsPerMajor + 0.5))
}

// Float64 returns the amount in major units
func (m Money) Float64() float64 {
	return float64(m) / MinorUnitsPerMajor
}

// String formats the amount as major units with two decimals
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/MinorUnitsPerMajor, v%MinorUnitsPerMajor)
}

// MarshalJSON implements json.Marshaler
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Money) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid money amount: %w", err)
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return fmt.Errorf("invalid money amount: %w", err)
	}
	*m = FromFloat(f)
	return nil
}
