package viewsync

// expansionStep maps a minimum zoom level to the factor applied to the
// visible area before fetching.
type expansionStep struct {
	minZoom float64
	factor  float64
}

// Close-in views fetch a larger multiple of what is visible so that local
// panning stays inside the fetched area.
var expansionSteps = []expansionStep{
	{minZoom: 15, factor: 3.0},
	{minZoom: 12, factor: 2.0},
	{minZoom: 9, factor: 1.5},
}

const defaultExpansion = 1.2

// ExpansionFactor returns the fetch margin multiplier for a map zoom level.
func ExpansionFactor(zoom float64) float64 {
	for _, s := range expansionSteps {
		if zoom >= s.minZoom {
			return s.factor
		}
	}
	return defaultExpansion
}
