package matching

// Config carries every tunable the engine reads. It is passed once at
// construction and never mutated during a run.
type Config struct {
	// AmountTolerance is the acceptable difference, in settlement currency,
	// between an invoice amount and a movement amount. Candidates beyond
	// twice this value are rejected outright.
	AmountTolerance float64
	// WindowSlackDays widens the search window on each side.
	WindowSlackDays int
	// MatchSimilarity is the name-similarity floor for a confident MATCH.
	MatchSimilarity float64
	// UncertainSimilarity is the floor for MATCH_DUDOSO.
	UncertainSimilarity float64
	// AdvisoryBandLow/High bound the ambiguous band (exclusive) in which a
	// second, advisory similarity estimate is requested.
	AdvisoryBandLow  float64
	AdvisoryBandHigh float64
	// Composite score weights.
	AmountWeight float64
	NameWeight   float64
	FlexBonus    float64
}

func DefaultConfig() Config {
	return Config{
		AmountTolerance:     50,
		WindowSlackDays:     3,
		MatchSimilarity:     0.55,
		UncertainSimilarity: 0.35,
		AdvisoryBandLow:     0.25,
		AdvisoryBandHigh:    0.80,
		AmountWeight:        0.5,
		NameWeight:          0.4,
		FlexBonus:           0.1,
	}
}
