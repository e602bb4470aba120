package wrapped

import "math"

// TopGenresLimit is the number of genres kept in a top-genres snapshot.
const TopGenresLimit = 10

// tally counts occurrences while remembering first-encounter order, so that
// equal counts resolve deterministically to the earliest-seen name.
type tally struct {
	counts map[string]int
	order  []string
}

func newTally() *tally {
	return &tally{counts: make(map[string]int)}
}

func (t *tally) add(name string) {
	if _, seen := t.counts[name]; !seen {
		t.order = append(t.order, name)
	}
	t.counts[name]++
}

// top returns up to n (name, count) pairs ordered by descending count.
// Ties break toward the name encountered first.
func (t *tally) top(n int) []Genre {
	sorted := make([]Genre, 0, len(t.order))
	for _, name := range t.order {
		sorted = append(sorted, Genre{Name: name, Count: t.counts[name]})
	}
	// Insertion sort keeps the first-encountered order stable for equal
	// counts.
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Count > sorted[j-1].Count; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// TallyTopGenres flattens per-artist genre lists into the top n genres with
// occurrence counts and percentages of the flattened total, rounded to two
// decimals.
func TallyTopGenres(genreLists [][]string, n int) []Genre {
	t := newTally()
	total := 0
	for _, genres := range genreLists {
		for _, g := range genres {
			t.add(g)
			total++
		}
	}
	if total == 0 {
		return nil
	}

	top := t.top(n)
	for i := range top {
		top[i].Percent = roundTwo(float64(top[i].Count) / float64(total) * 100)
	}
	return top
}

// MostFrequentAlbum returns the album name appearing most often in names and
// its count. Ties break toward the name encountered first. ok is false when
// names is empty.
func MostFrequentAlbum(names []string) (name string, count int, ok bool) {
	t := newTally()
	for _, n := range names {
		t.add(n)
	}
	for _, candidate := range t.order {
		if t.counts[candidate] > count {
			name, count = candidate, t.counts[candidate]
		}
	}
	return name, count, count > 0
}

func roundTwo(v float64) float64 {
	return math.Round(v*100) / 100
}
