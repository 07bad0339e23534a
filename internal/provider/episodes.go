package provider

import "sort"

// ArrangeEpisodes returns eps with regular episodes first and specials last.
// Regular episodes are ordered by absolute number under SortAbsolute when
// every one of them carries one, otherwise by season then number. When the
// source supplied no absolute numbers at all, they are assigned from the
// running index of the regular episodes. Specials never get one.
func ArrangeEpisodes(eps []Episode, order SortOrder) []Episode {
	regular := make([]Episode, 0, len(eps))
	var specials []Episode
	for _, ep := range eps {
		if ep.Special() {
			ep.Absolute = 0
			specials = append(specials, ep)
			continue
		}
		regular = append(regular, ep)
	}

	haveAll, haveAny := true, false
	for _, ep := range regular {
		if ep.Absolute > 0 {
			haveAny = true
		} else {
			haveAll = false
		}
	}

	if order == SortAbsolute && haveAll && len(regular) > 0 {
		sort.SliceStable(regular, func(i, j int) bool {
			return regular[i].Absolute < regular[j].Absolute
		})
	} else {
		sortBySeason(regular)
	}
	sortBySeason(specials)

	if !haveAny {
		for i := range regular {
			regular[i].Absolute = i + 1
		}
	}
	return append(regular, specials...)
}

func sortBySeason(eps []Episode) {
	sort.SliceStable(eps, func(i, j int) bool {
		if eps[i].Season != eps[j].Season {
			return eps[i].Season < eps[j].Season
		}
		return eps[i].Number < eps[j].Number
	})
}
