package evaluator

// Decision is where a phase goes after evaluation.
type Decision string

// Routing decisions.
const (
	DecisionCheckpoint Decision = "checkpoint"
	DecisionRevise     Decision = "revise"
)

// Latest returns the most recent evaluation for phase.
func Latest(history []Result, phase Phase) (Result, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Phase == phase {
			return history[i], true
		}
	}
	return Result{}, false
}

// Route sends a phase to its checkpoint when the revision count has
// reached the cap or the latest evaluation is ready, and to revision
// otherwise.
func Route(history []Result, phase Phase, count, limit int) Decision {
	if count >= limit {
		return DecisionCheckpoint
	}
	if latest, ok := Latest(history, phase); ok && latest.Ready {
		return DecisionCheckpoint
	}
	return DecisionRevise
}

// Cap returns the cap for phase from caps, falling back to DefaultCaps.
func Cap(caps map[Phase]int, phase Phase) int {
	if c, ok := caps[phase]; ok && c >= 0 {
		return c
	}
	return DefaultCaps[phase]
}
