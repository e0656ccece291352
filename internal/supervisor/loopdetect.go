package supervisor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

const (
	loopWarningThreshold  = 3
	loopCriticalThreshold = 6
)

// toolLoopState detects a tool being called repeatedly with identical
// arguments within one turn, adapted from the teacher's unexported
// toolLoopState in internal/agent/loop.go (detect(name, argsHash) →
// level, msg): a warning injects a corrective message, a critical level
// aborts the turn.
type toolLoopState struct {
	lastName string
	lastHash string
	streak   int
}

// argsHash stably hashes a tool call's name and input so repeated
// identical calls hash identically regardless of map key ordering.
func argsHash(name string, input map[string]any) string {
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make(map[string]any, len(input))
	for _, k := range keys {
		ordered[k] = input[k]
	}
	b, _ := json.Marshal(ordered)
	sum := sha256.Sum256(append([]byte(name+":"), b...))
	return hex.EncodeToString(sum[:])[:16]
}

// detect records one tool call and reports "", "warning", or "critical".
func (s *toolLoopState) detect(name string, hash string) (level, msg string) {
	if name == s.lastName && hash == s.lastHash {
		s.streak++
	} else {
		s.lastName, s.lastHash, s.streak = name, hash, 1
	}

	switch {
	case s.streak >= loopCriticalThreshold:
		return "critical", fmt.Sprintf("stuck calling %s with the same arguments %d times in a row", name, s.streak)
	case s.streak >= loopWarningThreshold:
		return "warning", fmt.Sprintf("you have called %s with identical arguments %d times in a row; try a different approach", name, s.streak)
	default:
		return "", ""
	}
}
