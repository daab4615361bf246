package playlist

// SeriesGroup is the set of episode entries sharing a series name.
// Membership is fixed once grouping is done.
type SeriesGroup struct {
	Name     string
	Episodes []*Entry
}

// GroupSeries partitions the series entries by series name. Groups appear
// in order of first occurrence and episodes keep their input order.
// Entries of any other type are ignored.
func GroupSeries(entries []*Entry) []SeriesGroup {
	index := make(map[string]int)
	var groups []SeriesGroup

	for _, e := range entries {
		if e.Type != TypeSeries {
			continue
		}
		name := SeriesName(e.Title)
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, SeriesGroup{Name: name})
		}
		groups[i].Episodes = append(groups[i].Episodes, e)
	}

	return groups
}

// Standalone returns the entries that are not series episodes.
func Standalone(entries []*Entry) []*Entry {
	var out []*Entry
	for _, e := range entries {
		if e.Type != TypeSeries {
			out = append(out, e)
		}
	}
	return out
}

// CountByType tallies entries per content type.
func CountByType(entries []*Entry) map[ContentType]int {
	counts := map[ContentType]int{
		TypeMovie:   0,
		TypeSeries:  0,
		TypeTV:      0,
		TypeUnknown: 0,
	}
	for _, e := range entries {
		counts[e.Type]++
	}
	return counts
}
