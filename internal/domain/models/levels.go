package models

// Level source types.
const (
	LevelSourcePivot = "pivot"
	LevelSourceFib   = "fibonacci"
	LevelSourceMA    = "moving_average"
	LevelSourceSwing = "swing"
	LevelSourceRound = "round_number"
)

type SupportResistanceLevel struct {
	Price      float64 `json:"price"`
	Label      string  `json:"label"`
	Strength   int     `json:"strength"`
	SourceType string  `json:"source_type"`
}

type SupportResistanceLevels struct {
	Supports    []SupportResistanceLevel `json:"supports"`
	Resistances []SupportResistanceLevel `json:"resistances"`
}
