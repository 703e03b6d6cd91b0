package severity

import "strings"

// DefaultWeight is the weight of any label that is not in the table.
const DefaultWeight = 1

var weights = map[string]int{
	"CRITICAL": 10,
	"ERROR":    7,
	"WARNING":  4,
	"NOTICE":   2,
}

// Weight maps a severity label to its numeric weight. Lookup is case-insensitive.
func Weight(label string) int {
	if w, ok := weights[strings.ToUpper(label)]; ok {
		return w
	}
	return DefaultWeight
}

// Score sums the weights of the given labels.
func Score(labels []string) (score int) {
	for _, l := range labels {
		score += Weight(l)
	}
	return
}
