package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// StrategyRecord is one stored strategy. Rank is its 1-based position in the
// latest ranking, 0 while it has never been ranked.
type StrategyRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Text      string    `json:"text"`
	Rank      int       `json:"rank"`
	CreatedAt time.Time `json:"created_at"`
}

type RankingPass struct {
	Ranking    []string  `json:"ranking"`
	Weights    []float64 `json:"weights"`
	Eliminated []string  `json:"eliminated"`
}

// RankingSnapshot records the outcome of one recalculation.
type RankingSnapshot struct {
	VersionedRecord
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Ranking   []string      `json:"ranking"`
	Passes    []RankingPass `json:"passes"`
}
