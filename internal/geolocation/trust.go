package geolocation

// TrustFlag classifies how far a geolocated feature can be relied upon.
type TrustFlag string

const (
	TrustGreen  TrustFlag = "GREEN"
	TrustYellow TrustFlag = "YELLOW"
	TrustRed    TrustFlag = "RED"
)

// Named threshold profiles for the consumer segments served by the engine.
const (
	ProfileMilitary       = "military"
	ProfileEmergency      = "emergency"
	ProfileLawEnforcement = "law_enforcement"
)

// Thresholds are the two confidence/distance pairs the trust flag is cut on.
type Thresholds struct {
	HighConfidence float64 `json:"high_confidence"`
	LowConfidence  float64 `json:"low_confidence"`
	TightDistanceM float64 `json:"tight_distance_m"`
	LooseDistanceM float64 `json:"loose_distance_m"`
}

// Profiles holds the built-in threshold sets.
var Profiles = map[string]Thresholds{
	ProfileMilitary: {
		HighConfidence: 0.85,
		LowConfidence:  0.5,
		TightDistanceM: 30,
		LooseDistanceM: 100,
	},
	ProfileEmergency: {
		HighConfidence: 0.7,
		LowConfidence:  0.4,
		TightDistanceM: 50,
		LooseDistanceM: 200,
	},
	ProfileLawEnforcement: {
		HighConfidence: 0.8,
		LowConfidence:  0.5,
		TightDistanceM: 25,
		LooseDistanceM: 75,
	},
}

// Classify assigns the trust flag for a confidence and uncertainty radius.
// GREEN needs both the high confidence and the tight distance; either the
// low confidence or the loose distance failing yields RED.
func (t Thresholds) Classify(confidence, uncertaintyM float64) TrustFlag {
	switch {
	case confidence < t.LowConfidence || uncertaintyM > t.LooseDistanceM:
		return TrustRed
	case confidence >= t.HighConfidence && uncertaintyM <= t.TightDistanceM:
		return TrustGreen
	default:
		return TrustYellow
	}
}
