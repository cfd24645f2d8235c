package metrics

import (
	"encoding/json"
	"fmt"
	"math"
)

// Decibels is a dB value that survives JSON round-trips even when
// infinite. PSNR of identical images is +Inf, which encoding/json
// refuses to encode as a number, so infinity is carried as the string
// "Infinity".
type Decibels float64

// IsInf reports whether the value is positive infinity.
func (d Decibels) IsInf() bool { return math.IsInf(float64(d), 1) }

func (d Decibels) String() string {
	if d.IsInf() {
		return "+Inf dB"
	}
	return fmt.Sprintf("%.2f dB", float64(d))
}

// MarshalJSON encodes finite values as numbers and +Inf as "Infinity".
func (d Decibels) MarshalJSON() ([]byte, error) {
	if d.IsInf() {
		return json.Marshal("Infinity")
	}
	return json.Marshal(float64(d))
}

// UnmarshalJSON accepts either a number or the string "Infinity".
func (d *Decibels) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "Infinity" {
			*d = Decibels(math.Inf(1))
			return nil
		}
		return fmt.Errorf("invalid decibel string %q", s)
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*d = Decibels(f)
	return nil
}
