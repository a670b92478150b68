package harness

import (
	"github.com/ZanzyTHEbar/sydney-stream/sydney/transcript"
)

// Budget bounds the context turn sent with each request.
type Budget struct {
	MaxContextChars int // 0 means unlimited
}

// ContextAssembler serializes the transcript into the context turn,
// dropping the oldest turns when it would not fit the budget.
type ContextAssembler struct {
	budget Budget
	// Measure sizes the serialized context; it defaults to byte length.
	Measure func(s string) int
}

func NewContextAssembler(b Budget, measure func(s string) int) *ContextAssembler {
	if measure == nil {
		measure = func(s string) int { return len(s) }
	}
	return &ContextAssembler{budget: b, Measure: measure}
}

// Pack returns the serialized context. System turns and the newest turn
// are never dropped, so the result may still exceed the budget.
func (a *ContextAssembler) Pack(turns []transcript.Turn) string {
	out := transcript.Serialize(turns)
	if a.budget.MaxContextChars <= 0 {
		return out
	}

	kept := append([]transcript.Turn(nil), turns...)
	for a.Measure(out) > a.budget.MaxContextChars {
		drop := -1
		for i := 0; i < len(kept)-1; i++ {
			if kept[i].Role != transcript.RoleSystem {
				drop = i
				break
			}
		}
		if drop < 0 {
			break
		}
		kept = append(kept[:drop], kept[drop+1:]...)
		out = transcript.Serialize(kept)
	}
	return out
}
