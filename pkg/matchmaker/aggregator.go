package matchmaker

// Aggregator folds member ratings into a single team rating.
type Aggregator interface {
	TeamRating(ratings []Rating) float64
}

// CasualAggregator uses the arithmetic mean.
type CasualAggregator struct{}

func (CasualAggregator) TeamRating(ratings []Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range ratings {
		sum += r.Value
	}
	return sum / float64(len(ratings))
}

// RankedAggregator weights each rating by how established it is.
// Provisional ratings (few games played) pull the team rating less.
type RankedAggregator struct {
	ProvisionalConfidence  int     // below this a rating is provisional
	IntermediateConfidence int     // below this a rating is intermediate
	ProvisionalWeight      float64
	IntermediateWeight     float64
}

// NewRankedAggregator returns the default tiers: <10 games 0.5, <20 games 0.75, otherwise 1.
func NewRankedAggregator() RankedAggregator {
	return RankedAggregator{
		ProvisionalConfidence:  10,
		IntermediateConfidence: 20,
		ProvisionalWeight:      0.5,
		IntermediateWeight:     0.75,
	}
}

// Weight returns the weight of a rating with the given confidence.
func (a RankedAggregator) Weight(confidence int) float64 {
	switch {
	case confidence < a.ProvisionalConfidence:
		return a.ProvisionalWeight
	case confidence < a.IntermediateConfidence:
		return a.IntermediateWeight
	default:
		return 1
	}
}

func (a RankedAggregator) TeamRating(ratings []Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	var sum, weights float64
	for _, r := range ratings {
		w := a.Weight(r.Confidence)
		sum += w * r.Value
		weights += w
	}
	if weights <= 0 {
		return CasualAggregator{}.TeamRating(ratings)
	}
	return sum / weights
}
