package leaderboard

import "promokit/core"

// Entry is one ranked program with its accumulated score. The score is
// an integer so callers decide the unit; analytics stores discount cents.
type Entry struct {
	Program core.ProgramID
	Score   int64
}

// Board abstracts program ranking operations.
type Board interface {
	Update(program core.ProgramID, score int64)
	Remove(program core.ProgramID)
	TopN(n int) []Entry
	Get(program core.ProgramID) (Entry, bool)
}
