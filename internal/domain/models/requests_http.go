package models

// Requests for the analysis HTTP endpoints.

type AnalyzeRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,max=32"`
	// At is an optional RFC3339 or unix-seconds timestamp; empty means now.
	At string `query:"at" json:"at"`
}

type LevelsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,max=32"`
}

type HistoryRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,max=32"`
	Limit  int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}

// BarClosedEvent is the payload of a bar-close message on the bars topic.
type BarClosedEvent struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"tf"`
	Timestamp int64  `json:"t"` // unix millis
}

// SignalRecord is one journaled final signal.
type SignalRecord struct {
	AnalysisID string      `json:"analysis_id"`
	Symbol     string      `json:"symbol"`
	AsOf       int64       `json:"as_of"` // unix millis
	Signal     FinalSignal `json:"signal"`
}
