package memory

// #region imports
import (
	"fmt"
	"math"
	"sort"
	"time"
)

// #endregion

// #region executor-stats

// halfLifeHours is the decay horizon for historical scores: 7 days.
const halfLifeHours = 7.0 * 24.0

// ExecutorStats returns the decay-weighted combined score per executor across
// every stored run, sorted by executor name. Recent attempts count more.
func (s *Store) ExecutorStats() ([]ExecutorStat, error) {
	rows, err := s.db.Query(`SELECT executor, self_score, second_score, created_at FROM confidence_scores`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	type accum struct {
		weightedSum float64
		totalWeight float64
		count       int
	}

	now := s.now()
	byExecutor := make(map[string]*accum)

	for rows.Next() {
		var rec ScoreRecord
		var createdAtStr string
		if err := rows.Scan(&rec.Executor, &rec.SelfScore, &rec.SecondScore, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
		if err != nil {
			continue
		}
		ageHours := now.Sub(createdAt).Hours()
		if ageHours < 0 {
			ageHours = 0
		}
		weight := math.Exp(-ageHours / halfLifeHours)

		a, ok := byExecutor[rec.Executor]
		if !ok {
			a = &accum{}
			byExecutor[rec.Executor] = a
		}
		a.weightedSum += float64(rec.Combined()) * weight
		a.totalWeight += weight
		a.count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats := make([]ExecutorStat, 0, len(byExecutor))
	for name, a := range byExecutor {
		avg := 0.0
		if a.totalWeight > 0 {
			avg = a.weightedSum / a.totalWeight
		}
		stats = append(stats, ExecutorStat{Executor: name, Samples: a.count, WeightedAverage: avg})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Executor < stats[j].Executor })
	return stats, nil
}

// #endregion
