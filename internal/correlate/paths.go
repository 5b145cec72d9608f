package correlate

// GetPaths implements §4.11: for every component of two or more
// fingerprints, extract the shortest head-to-tail path and the set of
// members left unused by it. Singleton components contribute neither a path
// nor an unused set.
func GetPaths(arena map[int]*Fingerprint, g *Graph, components [][]int) (paths [][]int, unused [][]int, err error) {
	for _, comp := range components {
		if len(comp) < 2 {
			continue
		}

		head, err := FindEnd(arena, comp, EndHead)
		if err != nil {
			return nil, nil, err
		}
		tail, err := FindEnd(arena, comp, EndTail)
		if err != nil {
			return nil, nil, err
		}

		path := g.ShortestPath(head, tail)
		onPath := make(map[int]bool, len(path))
		for _, id := range path {
			onPath[id] = true
		}

		var leftover []int
		for _, id := range comp {
			if !onPath[id] {
				leftover = append(leftover, id)
			}
		}

		paths = append(paths, path)
		unused = append(unused, leftover)
	}
	return paths, unused, nil
}
