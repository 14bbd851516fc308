package mirror

import (
	"strings"

	"trackmirror/pkg/fuzzy"
)

const (
	titleWordWeight     = 100.0
	artistMatchWeight   = 100.0
	authorSimilarityMax = 50.0
	extraWordPenalty    = 5.0
	explicitCleanMalus  = 200.0
	cleanVersionBonus   = 50.0
)

// artistSeparators split a multi-artist author such as "A, B & C".
const artistSeparators = ",&"

// Score rates how well candidate matches a reference whose title and author have
// already been passed through fuzzy.Normalize. Higher is better and the result
// may be negative.
func Score(candidate Track, refTitle, refAuthor string, explicit bool) float64 {
	title := fuzzy.Normalize(candidate.Title)
	author := fuzzy.Normalize(candidate.Author)

	refWords := fuzzy.Words(refTitle)
	candidateWords := fuzzy.Words(title)

	shared := 0
	for w := range refWords {
		if _, ok := candidateWords[w]; ok {
			shared++
		}
	}
	score := float64(shared) * titleWordWeight

	var authorScore float64
	for _, artist := range strings.FieldsFunc(refAuthor, isArtistSeparator) {
		artist = strings.TrimSpace(artist)
		if artist != "" && strings.Contains(author, artist) {
			authorScore += artistMatchWeight
		}
	}
	if authorScore > 0 {
		score += authorScore
	} else {
		score += fuzzy.Similarity(refAuthor, author) * authorSimilarityMax
	}

	extra := 0
	for w := range candidateWords {
		if _, ok := refWords[w]; !ok {
			extra++
		}
	}
	score -= float64(extra) * extraWordPenalty

	if strings.Contains(title, "clean") || strings.Contains(title, "radio") {
		if explicit {
			score -= explicitCleanMalus
		} else {
			score += cleanVersionBonus
		}
	}

	return score
}

func isArtistSeparator(r rune) bool {
	return strings.ContainsRune(artistSeparators, r)
}
