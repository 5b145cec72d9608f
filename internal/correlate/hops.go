package correlate

// ResolveHops implements §4.12 for one MAC address's fingerprints (macIDs):
// build its same-device graph, extract head-to-tail paths per component,
// link each path as a chain (fp[i].AntennaHop = fp[i+1].ID), and mark every
// non-head path member and every unused fingerprint IsHopped.
func ResolveHops(arena map[int]*Fingerprint, macIDs []int, locate AntennaLocator, maxDistanceKM float64) error {
	g, components, err := GetComponents(arena, macIDs, locate, maxDistanceKM)
	if err != nil {
		return err
	}

	paths, unused, err := GetPaths(arena, g, components)
	if err != nil {
		return err
	}

	for _, path := range paths {
		for i, id := range path {
			fp := arena[id]
			if i+1 < len(path) {
				fp.AntennaHop = path[i+1]
			} else {
				fp.AntennaHop = -1
			}
			if i > 0 {
				fp.IsHopped = true
			}
		}
	}

	for _, group := range unused {
		for _, id := range group {
			arena[id].IsHopped = true
		}
	}

	return nil
}
