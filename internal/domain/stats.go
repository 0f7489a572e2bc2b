package domain

import (
	"sort"
	"strings"
)

type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// RankTopics counts topics across lists and returns the n most frequent.
// Topics are trimmed and lowercased; ties keep the order in which topics were
// first encountered.
func RankTopics(lists [][]string, n int) []TopicCount {
	index := map[string]int{}
	var ranked []TopicCount
	for _, topics := range lists {
		for _, raw := range topics {
			topic := strings.ToLower(strings.TrimSpace(raw))
			if topic == "" {
				continue
			}
			if i, ok := index[topic]; ok {
				ranked[i].Count++
				continue
			}
			index[topic] = len(ranked)
			ranked = append(ranked, TopicCount{Topic: topic, Count: 1})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	if ranked == nil {
		ranked = []TopicCount{}
	}
	return ranked
}
