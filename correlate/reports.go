package correlate

import (
	"sort"

	"argus/core"
)

// TimelineLayout is the minute-resolution bucket key
const TimelineLayout = "2006-01-02T15:04"

// TopSourcesLimit is the number of sources shown by the top view
const TopSourcesLimit = 10

// Bucket is one minute of the detection timeline
type Bucket struct {
	Minute string `json:"minute"`
	Count  int    `json:"count"`
}

// Count is a key with its number of detections
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Timeline counts detections per UTC minute, in chronological order
func Timeline(records []core.HistoryRecord) []Bucket {
	counts := make(map[string]int)
	for _, rec := range records {
		counts[rec.Detection.Timestamp.UTC().Format(TimelineLayout)]++
	}
	buckets := make([]Bucket, 0, len(counts))
	for minute, n := range counts {
		buckets = append(buckets, Bucket{Minute: minute, Count: n})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Minute < buckets[j].Minute })
	return buckets
}

// TopSources returns up to limit sources ranked by detection count.
// Ties keep the order in which sources first appear.
func TopSources(records []core.HistoryRecord, limit int) []Count {
	ranked := rank(records, func(d *core.Detection) string { return d.Src })
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// RuleFrequency ranks every rule by detection count
func RuleFrequency(records []core.HistoryRecord) []Count {
	return rank(records, func(d *core.Detection) string { return d.RuleID })
}

func rank(records []core.HistoryRecord, key func(*core.Detection) string) []Count {
	index := make(map[string]int)
	var out []Count
	for _, rec := range records {
		k := key(rec.Detection)
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, Count{Key: k})
		}
		out[i].Count++
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}
