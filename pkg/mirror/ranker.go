package mirror

import (
	"cmp"
	"slices"

	"trackmirror/pkg/fuzzy"
)

// durationTolerance is the fraction of the reference duration a candidate may deviate by.
const durationTolerance = 0.05

// ScoredCandidate is a candidate that passed the duration filter, with its score and
// its position in the provider's result list.
type ScoredCandidate struct {
	Track
	Score float64
	Index int
}

// BestMatch picks the candidate that best matches ref. Candidates outside the duration
// tolerance are ignored; among the rest the highest score wins and ties go to the
// earlier candidate. It reports false when no candidate is within tolerance.
func BestMatch(candidates []Track, ref ReferenceTrack) (Track, bool) {
	best, ok := bestCandidate(candidates, ref)
	return best.Track, ok
}

// RankCandidates returns every candidate within the duration tolerance, ordered by
// descending score. Equal scores keep their original order.
func RankCandidates(candidates []Track, ref ReferenceTrack) []ScoredCandidate {
	var scored []ScoredCandidate
	forEachEligible(candidates, ref, func(c ScoredCandidate) {
		scored = append(scored, c)
	})

	slices.SortStableFunc(scored, func(a, b ScoredCandidate) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return scored
}

func bestCandidate(candidates []Track, ref ReferenceTrack) (ScoredCandidate, bool) {
	var (
		best  ScoredCandidate
		found bool
	)
	forEachEligible(candidates, ref, func(c ScoredCandidate) {
		if !found || c.Score > best.Score {
			best, found = c, true
		}
	})
	return best, found
}

func forEachEligible(candidates []Track, ref ReferenceTrack, fn func(ScoredCandidate)) {
	if len(candidates) == 0 {
		return
	}

	title := fuzzy.Normalize(ref.Title)
	author := fuzzy.Normalize(ref.Author)
	explicit := ref.IsExplicit()

	for i, candidate := range candidates {
		if !fuzzy.WithinTolerance(ref.Duration, candidate.Duration, durationTolerance) {
			continue
		}
		fn(ScoredCandidate{
			Track: candidate,
			Score: Score(candidate, title, author, explicit),
			Index: i,
		})
	}
}
