package scoring

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// maxFeatures bounds the vocabulary used for the density estimate.
const maxFeatures = 100

// termDensity is a small TF-IDF proxy for information density: the mean
// normalized TF-IDF weight of the document's terms over a vocabulary of
// the corpus's most frequent terms. Dense, distinctive content scores
// higher than boilerplate repeated across the corpus.
func termDensity(content string, corpus []string) float64 {
	docs := make([][]string, 0, len(corpus)+1)
	for _, c := range corpus {
		docs = append(docs, tokenize(c))
	}
	target := tokenize(content)
	docs = append(docs, target)

	vocab := buildVocabulary(docs, maxFeatures)
	if len(vocab) == 0 {
		return 0.5
	}

	// document frequency per vocabulary term
	df := make(map[string]int, len(vocab))
	for _, doc := range docs {
		seen := make(map[string]bool, len(doc))
		for _, term := range doc {
			if _, ok := vocab[term]; ok && !seen[term] {
				df[term]++
				seen[term] = true
			}
		}
	}

	// term frequency of the target document
	tf := make(map[string]int, len(target))
	for _, term := range target {
		if _, ok := vocab[term]; ok {
			tf[term]++
		}
	}
	if len(tf) == 0 {
		return 0
	}

	n := float64(len(docs))
	var sum float64
	var maxWeight float64
	weights := make(map[string]float64, len(tf))
	for term, count := range tf {
		// smoothed idf; terms present everywhere weigh near zero
		idf := math.Log(n / (1 + float64(df[term])))
		if idf < 0 {
			idf = 0
		}
		w := float64(count) * idf
		weights[term] = w
		if w > maxWeight {
			maxWeight = w
		}
	}
	if maxWeight == 0 {
		return 0
	}

	// mean over the full feature set, normalized to [0,1]
	for _, w := range weights {
		sum += w / maxWeight
	}
	return sum / float64(len(vocab))
}

// buildVocabulary returns the corpus's most frequent terms, capped at max.
// Frequency ties break alphabetically so the selection is deterministic.
func buildVocabulary(docs [][]string, max int) map[string]struct{} {
	counts := make(map[string]int)
	for _, doc := range docs {
		for _, term := range doc {
			counts[term]++
		}
	}

	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})

	if len(terms) > max {
		terms = terms[:max]
	}

	vocab := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		vocab[term] = struct{}{}
	}
	return vocab
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "he": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "of": {}, "on": {}, "or": {}, "that": {}, "the": {},
	"to": {}, "was": {}, "were": {}, "will": {}, "with": {},
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}
