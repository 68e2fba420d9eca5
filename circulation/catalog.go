package circulation

import (
	"strconv"
	"strings"
)

// Display is the canonical string trips and dispatches store for a catalog
// entry: "<number> - <name>", or the bare number when the name is empty.
func (s StoreEntry) Display() string {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return strconv.Itoa(s.Number)
	}
	return strconv.Itoa(s.Number) + " - " + name
}

// DetectDistributionCenter picks the single catalog entry acting as CD.
//
// An explicit IsDistributionCenter flag wins. Without any flagged entry the
// legacy name heuristic applies: names containing "CD", case-insensitive.
// Zero or several candidates mean no CD is configured, and every CD-relative
// figure is then zero.
func DetectDistributionCenter(stores []StoreEntry) (StoreEntry, bool) {
	var flagged, named []StoreEntry
	for _, s := range stores {
		if s.IsDistributionCenter {
			flagged = append(flagged, s)
		}
		if strings.Contains(strings.ToLower(s.Name), "cd") {
			named = append(named, s)
		}
	}

	candidates := flagged
	if len(flagged) == 0 {
		candidates = named
	}
	if len(candidates) != 1 {
		return StoreEntry{}, false
	}
	return candidates[0], true
}

// CenterDisplay returns the display of the detected CD, or "".
func CenterDisplay(stores []StoreEntry) string {
	cd, ok := DetectDistributionCenter(stores)
	if !ok {
		return ""
	}
	return cd.Display()
}
