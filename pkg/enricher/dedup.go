package enricher

/*
* https://www.DIVD.nl
* released under the Apache 2.0 license
* https://www.apache.org/licenses/LICENSE-2.0
 */

// sentSet tracks the payload values already emitted within one
// enrichment run, across all categories. One instance is created per
// HandleIP call and discarded afterwards.
type sentSet struct {
	seen map[string]struct{}
}

func newSentSet() *sentSet {
	return &sentSet{seen: make(map[string]struct{})}
}

// claim records value and reports whether it was still unclaimed.
// Equality is exact value match; no normalization is performed.
func (s *sentSet) claim(value string) bool {
	if _, ok := s.seen[value]; ok {
		return false
	}
	s.seen[value] = struct{}{}
	return true
}
