// Package humanity computes the Humanity Index, a cosmetic 0-255 score
// derived from the verification methods a user has completed.
package humanity

import (
	"math"

	"github.com/aretw0/twin3/pkg/domain"
)

// MaxScore is the score of a fully verified user.
const MaxScore = 255

// Score sums the weight of every method in table whose id is in completed,
// clamps the sum to 1.0 and scales it to [0, 255] with round-half-up.
// Unknown or repeated ids contribute nothing.
func Score(completed []string, table []domain.VerificationMethod) int {
	return scale(sum(completed, table))
}

// Contribution is one method's share of the score.
type Contribution struct {
	Method    domain.VerificationMethod `json:"method"`
	Completed bool                      `json:"completed"`
}

// Report is the score together with the per-method breakdown behind it.
type Report struct {
	Score    int            `json:"score"`
	Progress float64        `json:"progress"`
	Methods  []Contribution `json:"methods"`
}

// Breakdown returns the score and which methods of the table were completed.
func Breakdown(completed []string, table []domain.VerificationMethod) Report {
	done := make(map[string]struct{}, len(completed))
	for _, id := range completed {
		done[id] = struct{}{}
	}

	methods := make([]Contribution, len(table))
	for i, m := range table {
		_, ok := done[m.ID]
		methods[i] = Contribution{Method: m, Completed: ok}
	}

	total := sum(completed, table)
	return Report{
		Score:    scale(total),
		Progress: total,
		Methods:  methods,
	}
}

func sum(completed []string, table []domain.VerificationMethod) float64 {
	weights := make(map[string]float64, len(table))
	for _, m := range table {
		weights[m.ID] = m.Weight
	}

	var total float64
	seen := make(map[string]struct{}, len(completed))
	for _, id := range completed {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		total += weights[id]
	}
	return math.Min(total, 1.0)
}

func scale(total float64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Floor(total*MaxScore + 0.5))
}
