package similarity

// DefaultThreshold is the minimum cosine similarity for joining a cluster.
const DefaultThreshold = 0.92

// Item is one clustering input: a content key and its embedding.
type Item struct {
	Key    string
	Vector []float32
}

// Group is one cluster expressed as indices into the input slice.
// Members[0] is always Canonical and Scores[i] is the similarity of Members[i]
// to the canonical vector (1.0 for the canonical itself).
type Group struct {
	Members   []int
	Scores    []float64
	Canonical int
}

// Size returns the number of members including the canonical.
func (g Group) Size() int { return len(g.Members) }

// AvgSimilarity returns the mean similarity of non-canonical members to the
// canonical, or 1.0 for a singleton group.
func (g Group) AvgSimilarity() float64 {
	if len(g.Scores) <= 1 {
		return 1.0
	}
	var sum float64
	for _, s := range g.Scores[1:] {
		sum += s
	}
	return sum / float64(len(g.Scores)-1)
}

// GreedyCluster partitions items with single-pass greedy assignment.
// Items are visited in input order; the first unassigned item opens a new group
// and absorbs every later unassigned item whose similarity to it is >= threshold.
// The result depends on input order, which callers must keep stable.
func GreedyCluster(items []Item, threshold float64) []Group {
	if len(items) == 0 {
		return nil
	}

	// Track which items are already assigned
	assigned := make([]bool, len(items))
	groups := make([]Group, 0)

	for i := range items {
		if assigned[i] {
			continue
		}

		group := Group{
			Canonical: i,
			Members:   []int{i},
			Scores:    []float64{1.0},
		}
		assigned[i] = true

		for j := i + 1; j < len(items); j++ {
			if assigned[j] {
				continue
			}

			sim := CosineSimilarity(items[i].Vector, items[j].Vector)
			if sim >= threshold {
				group.Members = append(group.Members, j)
				group.Scores = append(group.Scores, sim)
				assigned[j] = true
			}
		}

		groups = append(groups, group)
	}

	return groups
}
