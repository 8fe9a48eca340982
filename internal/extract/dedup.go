package extract

import "github.com/adlibra/adlibra-backend/pkg/enums"

// Dedup merges the initial blob ads with the paginated ads, keyed by
// ad_archive_id, and caps the result at maxAds. With first precedence the
// copy seen earliest wins (the initial blob, since it is merged first); with
// last precedence a later copy replaces the earlier one in place.
func Dedup(initial, paginated []CollatedAd, maxAds int, precedence enums.DedupPrecedence) []CollatedAd {
	merged := make([]CollatedAd, 0, len(initial)+len(paginated))
	index := map[string]int{}

	for _, ad := range append(append([]CollatedAd{}, initial...), paginated...) {
		if ad.AdArchiveID == "" {
			continue
		}
		if at, seen := index[ad.AdArchiveID]; seen {
			if precedence == enums.DedupPrecedenceLast {
				merged[at] = ad
			}
			continue
		}
		index[ad.AdArchiveID] = len(merged)
		merged = append(merged, ad)
	}

	if maxAds > 0 && len(merged) > maxAds {
		merged = merged[:maxAds]
	}
	return merged
}
