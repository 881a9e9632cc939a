package graph

// HubThreshold is the link count at which a note counts as a hub.
const HubThreshold = 5

// Stats summarises a graph.
type Stats struct {
	NumberOfAllNotes                      int `json:"numberOfAllNotes"`
	NumberOfLinks                         int `json:"numberOfLinks"`
	NumberOfFiles                         int `json:"numberOfFiles"`
	NumberOfPins                          int `json:"numberOfPins"`
	NumberOfHubs                          int `json:"numberOfHubs"`
	NumberOfComponents                    int `json:"numberOfComponents"`
	NumberOfComponentsWithMoreThanOneNode int `json:"numberOfComponentsWithMoreThanOneNode"`
	NumberOfUnlinkedNotes                 int `json:"numberOfUnlinkedNotes"`
}

// Components partitions the notes into connected components, treating links
// as undirected. Components and their members are in slug order.
func Components(g *Graph) [][]string {
	seen := make(map[string]struct{}, len(g.Notes))
	var out [][]string
	for _, start := range g.Slugs() {
		if _, ok := seen[start]; ok {
			continue
		}
		seen[start] = struct{}{}
		component := []string{start}
		queue := []string{start}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range neighbours(g, cur) {
				if _, ok := seen[next]; ok {
					continue
				}
				seen[next] = struct{}{}
				component = append(component, next)
				queue = append(queue, next)
			}
		}
		out = append(out, toSet(component).Sorted())
	}
	return out
}

// IsHub reports whether s has at least HubThreshold links.
func IsHub(g *Graph, s string) bool {
	return g.LinkCount(s) >= HubThreshold
}

// ComputeStats counts notes, links, attachments, pins, hubs and components.
func ComputeStats(g *Graph) Stats {
	st := Stats{
		NumberOfAllNotes: len(g.Notes),
		NumberOfFiles:    len(g.Metadata.Files),
		NumberOfPins:     len(g.Metadata.PinnedNotes),
	}
	for s := range g.Notes {
		st.NumberOfLinks += len(g.Outgoing(s))
		if IsHub(g, s) {
			st.NumberOfHubs++
		}
		if len(neighbours(g, s)) == 0 {
			st.NumberOfUnlinkedNotes++
		}
	}
	for _, c := range Components(g) {
		st.NumberOfComponents++
		if len(c) > 1 {
			st.NumberOfComponentsWithMoreThanOneNode++
		}
	}
	return st
}

// neighbours returns the existing notes linked with s in either direction,
// excluding s itself.
func neighbours(g *Graph, s string) []string {
	set := make(Set)
	for _, n := range g.Outgoing(s) {
		set[n] = struct{}{}
	}
	for _, n := range g.Incoming(s) {
		set[n] = struct{}{}
	}
	delete(set, s)
	return set.Sorted()
}

func toSet(items []string) Set {
	out := make(Set, len(items))
	for _, it := range items {
		out[it] = struct{}{}
	}
	return out
}
