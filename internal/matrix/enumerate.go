package matrix

type groupKey struct {
	family Family
	name   string
	hasPin bool
	tx     [2]Scalar
	rx     [2]Scalar
}

type familyEntry struct {
	family Family
	entry  Entry
}

// Enumerate expands doc into one variant per electrically distinct wiring.
// Entries are grouped by family, UART name and pin mapping; each group is
// tested once on the first device that lists it. Groups with no device at
// all are dropped. Output order follows first appearance in the document.
func Enumerate(doc Document) []Variant {
	var entries []familyEntry
	for _, e := range doc.Classic {
		entries = append(entries, familyEntry{Classic, e})
	}
	for _, e := range doc.ZeroSeries {
		entries = append(entries, familyEntry{ZeroSeries, e})
	}
	for _, e := range doc.Legacy {
		entries = append(entries, familyEntry{familyOfType(e.Type), e})
	}

	var variants []Variant
	index := make(map[groupKey]int)

	add := func(fe familyEntry, key groupKey, v Variant) {
		i, seen := index[key]
		if !seen {
			i = len(variants)
			index[key] = i
			variants = append(variants, v)
		}
		if variants[i].Device == "" && len(fe.entry.IncludedParts) > 0 {
			variants[i].Device = fe.entry.IncludedParts[0]
		}
	}

	for _, fe := range entries {
		e := fe.entry
		if len(e.Ports) == 0 {
			add(fe, groupKey{family: fe.family, name: e.Name}, Variant{
				Peripheral: e.Name,
				Family:     fe.family,
				Type:       e.Type,
			})
			continue
		}
		for i, p := range e.Ports {
			key := groupKey{
				family: fe.family,
				name:   e.Name,
				hasPin: true,
				tx:     [2]Scalar{p.TXPort, p.TXPin},
				rx:     [2]Scalar{p.RXPort, p.RXPin},
			}
			add(fe, key, Variant{
				Peripheral: e.Name,
				Family:     fe.family,
				Type:       e.Type,
				PinIndex:   i,
				Pin:        p,
				HasPin:     true,
			})
		}
	}

	out := variants[:0]
	for _, v := range variants {
		if v.Device != "" {
			out = append(out, v)
		}
	}
	return out
}
