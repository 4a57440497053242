package academic

import (
	"math"
	"strconv"
	"strings"
)

// Round rounds x to places decimals, half away from zero.
// It works on the shortest decimal representation of x, so 1.005 rounds to 1.01
// even though its binary value is slightly below 1.005.
func Round(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || places < 0 {
		return x
	}

	s := strconv.FormatFloat(math.Abs(x), 'f', -1, 64)
	intPart, fracPart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if len(fracPart) <= places {
		return x
	}

	digits := []byte(intPart + fracPart[:places])
	if fracPart[places] >= '5' {
		// propagate the carry
		i := len(digits) - 1
		for ; i >= 0; i-- {
			if digits[i] == '9' {
				digits[i] = '0'
				continue
			}
			digits[i]++
			break
		}
		if i < 0 {
			digits = append([]byte{'1'}, digits...)
		}
	}

	n := len(digits) - places
	rounded := string(digits[:n])
	if places > 0 {
		rounded += "." + string(digits[n:])
	}
	r, err := strconv.ParseFloat(rounded, 64)
	if err != nil {
		return x
	}
	if x < 0 {
		return -r
	}
	return r
}

// Round2 rounds x to 2 decimals, half away from zero.
func Round2(x float64) float64 {
	return Round(x, 2)
}
