package correlate

import "fmt"

// End names the extremum FindEnd searches for.
type End string

const (
	EndHead End = "head"
	EndTail End = "tail"
)

// FindEnd implements §4.10: for End Head, the fingerprint minimising
// FirstSeen; for End Tail, the fingerprint maximising LastSeen. Ties are
// broken by longest Duration, then by position in ids (earliest wins).
func FindEnd(arena map[int]*Fingerprint, ids []int, end End) (int, error) {
	if end != EndHead && end != EndTail {
		return 0, &InvariantError{Msg: fmt.Sprintf("find_end: unknown end %q", end)}
	}
	if len(ids) == 0 {
		return 0, &InvariantError{Msg: "find_end: empty id set"}
	}

	best := ids[0]
	for _, id := range ids[1:] {
		if betterEnd(arena, id, best, end) {
			best = id
		}
	}
	return best, nil
}

func betterEnd(arena map[int]*Fingerprint, candidate, current int, end End) bool {
	c, cur := arena[candidate], arena[current]

	switch end {
	case EndHead:
		if c.FirstSeen != cur.FirstSeen {
			return c.FirstSeen < cur.FirstSeen
		}
	case EndTail:
		if c.LastSeen != cur.LastSeen {
			return c.LastSeen > cur.LastSeen
		}
	}
	if c.Duration() != cur.Duration() {
		return c.Duration() > cur.Duration()
	}
	// Equal extremum and duration: keep current, the earlier in input order.
	return false
}
