package structure

// HasOverlap reports whether the closed range [min(candidate), max(candidate)]
// intersects an existing section. The section whose Order equals *current is
// not compared itself; the candidate is compared against its questions
// instead. Only section and question spans are checked.
//
// Spans are compared by their [min, max] bounds, so a span with gaps still
// covers every line in between.
func HasOverlap(candidate []int, current *int, sections []*Section) bool {
	if len(candidate) == 0 {
		return false
	}
	lo, hi := minLine(candidate), maxLine(candidate)
	for _, s := range sections {
		if current != nil && s.Order == *current {
			for _, q := range s.Questions {
				if intersects(lo, hi, q.SpanLines) {
					return true
				}
			}
			continue
		}
		if intersects(lo, hi, s.SpanLines) {
			return true
		}
	}
	return false
}

func intersects(lo, hi int, span []int) bool {
	if len(span) == 0 {
		return false
	}
	return lo <= maxLine(span) && minLine(span) <= hi
}
