package extract

import (
	"encoding/json"
	"testing"
)

func collatedNode(id string) map[string]any {
	return map[string]any{
		"ad_archive_id": id,
		"page_name":     "Acme Shop",
		"start_date":    int64(1700000000),
		"end_date":      int64(1700086400),
		"is_active":     true,
		"snapshot": map[string]any{
			"title": "Snapshot Title",
			"body":  map[string]any{"text": "Body text"},
			"cards": []any{
				map[string]any{
					"body":               "Card body",
					"title":              "Card title",
					"link_url":           "https://example.com/card",
					"original_image_url": "https://cdn.example.com/card.jpg",
				},
			},
			"images": []any{
				map[string]any{"original_image_url": "https://cdn.example.com/img1.jpg"},
			},
			"videos": []any{
				map[string]any{"video_hd_url": "https://cdn.example.com/vid_hd.mp4", "video_sd_url": "https://cdn.example.com/vid_sd.mp4"},
			},
		},
	}
}

func resultsEnvelope(ids ...string) map[string]any {
	collated := []any{}
	for _, id := range ids {
		collated = append(collated, collatedNode(id))
	}
	return map[string]any{
		"ad_library_main": map[string]any{
			"search_results_connection": map[string]any{
				"edges": []any{
					map[string]any{"node": map[string]any{"collated_results": collated}},
				},
			},
		},
	}
}

func snapshotPayload(t *testing.T, ids ...string) []byte {
	t.Helper()
	payload := map[string]any{
		"require": []any{
			[]any{nil, nil, nil, []any{
				map[string]any{"__bbox": map[string]any{
					"require": []any{
						[]any{nil, nil, nil, []any{
							map[string]any{},
							map[string]any{"__bbox": map[string]any{
								"result": map[string]any{"data": resultsEnvelope(ids...)},
							}},
						}},
					},
				}},
			}},
		},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal snapshot payload: %v", err)
	}
	return b
}

func paginationPayload(t *testing.T, ids ...string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{"data": resultsEnvelope(ids...)})
	if err != nil {
		t.Fatalf("marshal pagination payload: %v", err)
	}
	return b
}

func TestSnapshotStrategyExtractsCollatedAds(t *testing.T) {
	ads, err := (SnapshotStrategy{}).Extract(snapshotPayload(t, "111", "222"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(ads) != 2 {
		t.Fatalf("expected 2 ads, got %d", len(ads))
	}
	if ads[0].AdArchiveID != "111" || ads[1].AdArchiveID != "222" {
		t.Fatalf("unexpected ids: %s, %s", ads[0].AdArchiveID, ads[1].AdArchiveID)
	}
	if ads[0].PageName != "Acme Shop" {
		t.Fatalf("unexpected page name %q", ads[0].PageName)
	}
	if ads[0].Raw == nil {
		t.Fatal("expected raw node to be retained")
	}
}

func TestPaginationStrategyExtractsCollatedAds(t *testing.T) {
	ads, err := (PaginationStrategy{}).Extract(paginationPayload(t, "333"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(ads) != 1 {
		t.Fatalf("expected 1 ad, got %d", len(ads))
	}
	if ads[0].AdArchiveID != "333" {
		t.Fatalf("unexpected id %s", ads[0].AdArchiveID)
	}
}

func TestStrategiesRejectMalformedPayloads(t *testing.T) {
	cases := []struct {
		name     string
		strategy Strategy
		payload  []byte
	}{
		{"snapshot not json", SnapshotStrategy{}, []byte("<html>")},
		{"snapshot wrong shape", SnapshotStrategy{}, []byte(`{"require": []}`)},
		{"pagination not json", PaginationStrategy{}, []byte("oops")},
		{"pagination wrong shape", PaginationStrategy{}, []byte(`{"data": {}}`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.strategy.Extract(tc.payload); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestCollatedAdsWithoutArchiveIDAreSkipped(t *testing.T) {
	node := collatedNode("")
	payload, err := json.Marshal(map[string]any{
		"data": map[string]any{
			"ad_library_main": map[string]any{
				"search_results_connection": map[string]any{
					"edges": []any{
						map[string]any{"node": map[string]any{"collated_results": []any{node, collatedNode("999")}}},
					},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	ads, err := (PaginationStrategy{}).Extract(payload)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(ads) != 1 || ads[0].AdArchiveID != "999" {
		t.Fatalf("expected only the identified ad, got %+v", ads)
	}
}

func TestDefaultRegistryCarriesBothStrategies(t *testing.T) {
	reg := DefaultRegistry()

	for _, name := range []string{"snapshot/v1", "pagination/v1"} {
		if _, err := reg.Get(name); err != nil {
			t.Fatalf("missing strategy %s: %v", name, err)
		}
	}
	if _, err := reg.Get("snapshot/v2"); err == nil {
		t.Fatal("expected unknown strategy error")
	}
}
