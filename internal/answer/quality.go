package answer

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/knoguchi/omnirag/internal/classify"
	"github.com/knoguchi/omnirag/internal/core"
)

const (
	weightStructure   = 0.25
	weightDensity     = 0.25
	weightNaturalness = 0.20
	weightConfidence  = 0.30
)

const (
	tierExcellentMin        = 0.85
	tierGoodMin             = 0.70
	tierAcceptableMin       = 0.50
)

// Score computes the weighted overall quality score and its tier from the
// four component scores (C18).
func Score(structure, density, naturalness, confidence float64) core.QualityReport {
	overall := weightStructure*structure + weightDensity*density + weightNaturalness*naturalness + weightConfidence*confidence
	return core.QualityReport{
		Structure:   structure,
		Density:     density,
		Naturalness: naturalness,
		Confidence:  confidence,
		Overall:     overall,
		Tier:        tierFor(overall),
	}
}

func tierFor(overall float64) core.QualityTier {
	switch {
	case overall >= tierExcellentMin:
		return core.TierExcellent
	case overall >= tierGoodMin:
		return core.TierGood
	case overall >= tierAcceptableMin:
		return core.TierAcceptable
	default:
		return core.TierNeedsImprovement
	}
}

// Record is one logged interaction, the JSONL unit persisted by Logger.
type Record struct {
	Timestamp        time.Time           `json:"timestamp"`
	Complexity       classify.Complexity `json:"complexity"`
	Quality          core.QualityReport  `json:"quality"`
	RefinementApplied bool               `json:"refinement_applied"`
}

// Logger appends one JSON line per interaction to a quality-metrics file,
// the same append-only idiom the teacher uses for its structured log
// handler, applied to a dedicated metrics stream instead of stderr.
type Logger struct {
	mu   sync.Mutex
	file *os.File
}

// NewLogger opens (creating if absent) the metrics file at path for
// appending.
func NewLogger(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening quality metrics log: %w", err)
	}
	return &Logger{file: f}, nil
}

// Close closes the underlying file.
func (l *Logger) Close() error { return l.file.Close() }

// Log appends one record as a JSON line.
func (l *Logger) Log(r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding quality record: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.file.Write(data)
	return err
}

// AggregateReport summarizes a set of records: average overall score per
// complexity bucket, and the fraction of interactions that triggered
// refinement.
type AggregateReport struct {
	Count            int
	AverageByComplexity map[classify.Complexity]float64
	RefinementRate   float64
}

// Aggregate computes an AggregateReport from a slice of records.
func Aggregate(records []Record) AggregateReport {
	report := AggregateReport{AverageByComplexity: map[classify.Complexity]float64{}}
	if len(records) == 0 {
		return report
	}

	sums := map[classify.Complexity]float64{}
	counts := map[classify.Complexity]int{}
	refined := 0
	for _, r := range records {
		sums[r.Complexity] += r.Quality.Overall
		counts[r.Complexity]++
		if r.RefinementApplied {
			refined++
		}
	}
	for complexity, sum := range sums {
		report.AverageByComplexity[complexity] = sum / float64(counts[complexity])
	}
	report.Count = len(records)
	report.RefinementRate = float64(refined) / float64(len(records))
	return report
}
