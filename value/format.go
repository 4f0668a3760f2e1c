package value

import "strconv"

// formatNumber renders a float the way Jyro displays numbers: values that
// are mathematically integral and not force-float print without a decimal
// point ("6"), everything else prints its shortest round-trip decimal
// representation ("6.5").
func formatNumber(v float64, forceFloat bool) string {
	if !forceFloat && v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
