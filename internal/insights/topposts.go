package insights

import (
	"sort"

	"github.com/pulsoria/social-sync/internal/domain"
)

// TopPosts deduplicates posts by platform and external ID, then returns the
// best n ranked by visibility, with engagements and recency as tie-breakers.
func TopPosts(posts []domain.PostMetric, n int) []domain.PostMetric {
	if n <= 0 {
		return nil
	}

	deduped := dedupe(posts)

	sort.SliceStable(deduped, func(i, j int) bool {
		a, b := deduped[i], deduped[j]
		if av, bv := a.Visibility(), b.Visibility(); av != bv {
			return av > bv
		}
		if ae, be := a.Engagements(), b.Engagements(); ae != be {
			return ae > be
		}
		return a.PostedAt.After(b.PostedAt)
	})

	if len(deduped) > n {
		deduped = deduped[:n]
	}
	return deduped
}

// dedupe keeps one row per (platform, external post ID). When the same post
// appears twice, the better record wins, judged by visibility, then
// engagements, then the more recent postedAt.
func dedupe(posts []domain.PostMetric) []domain.PostMetric {
	type key struct {
		platform domain.Platform
		id       string
	}

	index := make(map[key]int, len(posts))
	out := make([]domain.PostMetric, 0, len(posts))
	for _, post := range posts {
		k := key{platform: post.Platform, id: post.ExternalPostID}
		if at, seen := index[k]; seen {
			if better(post, out[at]) {
				out[at] = post
			}
			continue
		}
		index[k] = len(out)
		out = append(out, post)
	}
	return out
}

func better(a, b domain.PostMetric) bool {
	if av, bv := a.Visibility(), b.Visibility(); av != bv {
		return av > bv
	}
	if ae, be := a.Engagements(), b.Engagements(); ae != be {
		return ae > be
	}
	return a.PostedAt.After(b.PostedAt)
}
