package extract

import "math"

// ExtractInt returns the first run of decimal digits in line as an integer,
// or 0 when the line has no digits. Signs, decimal points and units are not
// interpreted: "-3.5 marks" yields 3.
func ExtractInt(line string) int {
	start := -1
	for i := 0; i < len(line); i++ {
		if isDigit(line[i]) {
			start = i
			break
		}
	}
	if start < 0 {
		return 0
	}

	n := 0
	for i := start; i < len(line) && isDigit(line[i]); i++ {
		d := int(line[i] - '0')
		if n > (math.MaxInt32-d)/10 {
			return math.MaxInt32
		}
		n = n*10 + d
	}
	return n
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
