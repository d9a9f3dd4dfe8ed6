// Package ranker collapses chunk-level matches into one match per reference
// track.
package ranker

import (
	"slices"

	"github.com/beatrec/beatrec/internal/model"
)

// Rank keeps the best (lowest) score of every reference track and returns the
// tracks sorted ascending by that score. Tracks are grouped in the order they
// first appear, and ties keep that order. Within a track the earliest match
// wins a tie, so its time range is the one reported.
func Rank(matches []model.ChunkMatch) ([]model.TrackMatch, error) {
	best := make(map[string]int, len(matches))
	ranked := make([]model.TrackMatch, 0, len(matches))

	for i, m := range matches {
		if m.ParentID == "" {
			return nil, &model.MalformedMatchError{Index: i, Field: "parent id"}
		}
		if !m.HasScore() {
			return nil, &model.MalformedMatchError{Index: i, Field: "score"}
		}

		pos, seen := best[m.ParentID]
		if !seen {
			best[m.ParentID] = len(ranked)
			ranked = append(ranked, trackMatch(m))
			continue
		}
		if m.Score < ranked[pos].Score {
			ranked[pos] = trackMatch(m)
		}
	}

	slices.SortStableFunc(ranked, func(a, b model.TrackMatch) int {
		switch {
		case a.Score < b.Score:
			return -1
		case a.Score > b.Score:
			return 1
		default:
			return 0
		}
	})
	return ranked, nil
}

func trackMatch(m model.ChunkMatch) model.TrackMatch {
	return model.TrackMatch{
		TrackID:   m.ParentID,
		URI:       m.URI,
		Score:     m.Score,
		TimeRange: m.TimeRange,
	}
}

// RankDocuments ranks the chunk matches of each document and stores the
// result on the document. Every chunk contributes its matches once, in chunk
// order.
func RankDocuments(docs []*model.Document) error {
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		var all []model.ChunkMatch
		for _, c := range doc.Chunks {
			all = append(all, c.Matches...)
		}
		ranked, err := Rank(all)
		if err != nil {
			return err
		}
		doc.Matches = ranked
	}
	return nil
}

// Truncate returns at most limit matches. A non-positive limit keeps all.
func Truncate(matches []model.TrackMatch, limit int) []model.TrackMatch {
	if limit <= 0 || len(matches) <= limit {
		return matches
	}
	return matches[:limit]
}
