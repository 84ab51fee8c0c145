package vault

// MaxClusterSize bounds a multi-item cluster (the channel's album limit).
const MaxClusterSize = 10

// Cluster is the unit of one delivery call.
type Cluster struct {
	Kind  Kind
	Items []Item
}

// Multi reports whether c is delivered as a grouped call.
func (c Cluster) Multi() bool { return len(c.Items) > 1 }

// Group splits items into maximal runs of one groupable kind, at most
// MaxClusterSize long. Every other item becomes its own cluster. Order is kept.
func Group(items []Item) []Cluster {
	out := make([]Cluster, 0, len(items))
	open := -1
	for _, it := range items {
		if open >= 0 && it.Kind == out[open].Kind && len(out[open].Items) < MaxClusterSize {
			out[open].Items = append(out[open].Items, it)
			continue
		}
		out = append(out, Cluster{Kind: it.Kind, Items: []Item{it}})
		open = -1
		if it.Kind.Groupable() {
			open = len(out) - 1
		}
	}
	return out
}
