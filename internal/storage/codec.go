package storage

import (
	"encoding/json"
	"errors"

	"twotoone/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeSnapshot(s model.RankingSnapshot) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeSnapshot(data []byte) (model.RankingSnapshot, error) {
	var snapshot model.RankingSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return model.RankingSnapshot{}, err
	}
	if err := checkVersion(snapshot.VersionedRecord); err != nil {
		return model.RankingSnapshot{}, err
	}
	return snapshot, nil
}

// Versioned stamps the current schema and codec versions.
func Versioned() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}

func copySnapshot(s model.RankingSnapshot) model.RankingSnapshot {
	s.Ranking = append([]string(nil), s.Ranking...)
	if s.Passes != nil {
		passes := make([]model.RankingPass, len(s.Passes))
		for i, p := range s.Passes {
			passes[i] = model.RankingPass{
				Ranking:    append([]string(nil), p.Ranking...),
				Weights:    append([]float64(nil), p.Weights...),
				Eliminated: append([]string(nil), p.Eliminated...),
			}
		}
		s.Passes = passes
	}
	return s
}
