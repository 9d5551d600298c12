package dedup

import (
	"sort"

	"memlayer/internal/extraction"
	"memlayer/internal/metrics"
)

// Deduplicator clusters and merges near-duplicate memories.
type Deduplicator struct {
	recorder metrics.Recorder
}

// NewDeduplicator returns a Deduplicator with metrics disabled by default.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{recorder: metrics.Nop()}
}

// SetRecorder installs a metrics.Recorder for observing merged cluster
// sizes. Defaults to a no-op recorder.
func (d *Deduplicator) SetRecorder(r metrics.Recorder) {
	d.recorder = r
}

// Deduplicate gathers memories from successful chunks, clusters
// near-duplicates within each (type, workspace) group, and merges each
// cluster into one canonical memory. Deduplication is deterministic given
// chunkResults' order; ties in similarity break toward the
// earlier-scanned member.
func (d *Deduplicator) Deduplicate(chunkResults []extraction.ChunkExtractionResult) DeduplicationResult {
	var all []extraction.Memory
	for _, cr := range chunkResults {
		if cr.Status == extraction.StatusFailed {
			continue
		}
		all = append(all, cr.Memories...)
	}

	groups, order := groupByTypeAndWorkspace(all)

	var unique []extraction.Memory
	var merged []extraction.Memory
	duplicatesFound := 0

	for _, key := range order {
		for _, cluster := range clusterMembers(groups[key]) {
			if len(cluster) == 1 {
				unique = append(unique, cluster[0].memory)
				continue
			}
			canonical := mergeCluster(cluster)
			unique = append(unique, canonical)
			merged = append(merged, canonical)
			duplicatesFound += len(cluster) - 1
			d.recorder.ObserveDedupCluster(canonical.WorkspaceID, len(cluster))
		}
	}

	return DeduplicationResult{UniqueMemories: unique, DuplicatesFound: duplicatesFound, MergedMemories: merged}
}

// groupByTypeAndWorkspace buckets memories by (type, workspace_id),
// returning the buckets plus the order their keys first appeared in, for
// deterministic downstream processing.
func groupByTypeAndWorkspace(all []extraction.Memory) (map[groupKey][]memberRef, []groupKey) {
	groups := make(map[groupKey][]memberRef)
	var order []groupKey
	for i, m := range all {
		key := groupKey{memType: m.Type, workspaceID: m.WorkspaceID}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], memberRef{index: i, memory: m})
	}
	return groups, order
}

// clusterMembers unions pairwise duplicates (union-find) within a single
// (type, workspace) group and returns clusters in first-appearance order.
func clusterMembers(members []memberRef) [][]memberRef {
	n := len(members)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if rb < ra {
			ra, rb = rb, ra
		}
		parent[rb] = ra
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if isDuplicate(members[i].memory, members[j].memory) {
				union(i, j)
			}
		}
	}

	byRoot := make(map[int][]memberRef)
	var rootOrder []int
	for i := 0; i < n; i++ {
		r := find(i)
		if _, ok := byRoot[r]; !ok {
			rootOrder = append(rootOrder, r)
		}
		byRoot[r] = append(byRoot[r], members[i])
	}

	clusters := make([][]memberRef, 0, len(rootOrder))
	for _, r := range rootOrder {
		clusters = append(clusters, byRoot[r])
	}
	return clusters
}

// mergeCluster picks the highest-confidence member as the base (ties
// broken toward the earlier-scanned member), unions provenance fields,
// fills absent base metadata from other members, and takes the earliest
// created_at.
func mergeCluster(cluster []memberRef) extraction.Memory {
	sorted := make([]memberRef, len(cluster))
	copy(sorted, cluster)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].index < sorted[j].index })

	baseIdx := 0
	for i := 1; i < len(sorted); i++ {
		if sorted[i].memory.Confidence > sorted[baseIdx].memory.Confidence {
			baseIdx = i
		}
	}
	base := sorted[baseIdx].memory

	messageIDSet := map[string]struct{}{}
	chunkSet := map[string]struct{}{}
	var chunkConfidence []float64
	var mergedFrom []string
	minCreatedAt := base.CreatedAt

	metadata := make(map[string]any, len(base.Metadata))
	for k, v := range base.Metadata {
		metadata[k] = v
	}

	for i, member := range sorted {
		for _, id := range member.memory.SourceMessageIDs {
			messageIDSet[id] = struct{}{}
		}
		for _, c := range member.memory.SourceChunks {
			chunkSet[c] = struct{}{}
		}
		chunkConfidence = append(chunkConfidence, member.memory.ChunkConfidence...)
		mergedFrom = append(mergedFrom, member.memory.ID)
		if member.memory.CreatedAt.Before(minCreatedAt) {
			minCreatedAt = member.memory.CreatedAt
		}
		if i == baseIdx {
			continue
		}
		for k, v := range member.memory.Metadata {
			if existing, ok := metadata[k]; !ok || existing == nil {
				metadata[k] = v
			}
		}
	}

	result := base
	result.SourceMessageIDs = sortedKeys(messageIDSet)
	result.SourceChunks = sortedKeys(chunkSet)
	result.ChunkConfidence = chunkConfidence
	result.MergedFrom = mergedFrom
	result.CreatedAt = minCreatedAt
	result.Metadata = metadata
	return result
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
