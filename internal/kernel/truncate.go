package kernel

import "github.com/ariarun/aria/pkg/types"

// estimateSize approximates a message's token footprint by character count,
// matching the heuristic the router's providers use for cost estimation.
func estimateSize(m types.Message) int {
	n := len(m.Text) + len(m.Arguments) + len(m.Result)
	return n / 4
}

// truncate drops whole messages from history, oldest first, until the
// estimated size is within ceiling. The first message — the original user
// task — is never dropped, and no message is ever split.
func truncate(history []types.Message, ceiling int) []types.Message {
	if ceiling <= 0 || len(history) <= 1 {
		return history
	}

	total := 0
	for _, m := range history {
		total += estimateSize(m)
	}
	if total <= ceiling {
		return history
	}

	kept := append([]types.Message(nil), history...)
	for i := 1; i < len(kept) && total > ceiling; {
		total -= estimateSize(kept[i])
		kept = append(kept[:i], kept[i+1:]...)
	}
	return kept
}
