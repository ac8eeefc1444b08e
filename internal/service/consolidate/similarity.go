package consolidate

import "github.com/xrash/smetrics"

// JaroWinkler is the default near-duplicate similarity measure, returning
// a value in [0,1] where 1 is identical.
func JaroWinkler(a, b string) float64 {
	if a == b {
		return 1.0
	}
	return smetrics.JaroWinkler(a, b, 0.7, 4)
}
