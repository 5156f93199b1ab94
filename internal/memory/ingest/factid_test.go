package ingest

import (
	"testing"

	"github.com/shimonpozd/astra-sub000/internal/models"
)

func TestDeriveFactIDStable(t *testing.T) {
	item := &models.IngestItem{
		Text:       "the user moved to Lisbon",
		UserID:     "u1",
		SessionID:  "s1",
		Role:       "user",
		OriginRef:  "msg-42",
		ChunkIndex: 0,
	}

	a := DeriveFactID("personal", item)
	b := DeriveFactID("personal", item)
	if a != b {
		t.Errorf("same item must hash to the same id: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected a 64-char hex digest, got %d chars", len(a))
	}
}

func TestDeriveFactIDChangesWithIdentityFields(t *testing.T) {
	base := models.IngestItem{
		Text:       "the user moved to Lisbon",
		SessionID:  "s1",
		Role:       "user",
		OriginRef:  "msg-42",
		ChunkIndex: 0,
	}
	baseID := DeriveFactID("personal", &base)

	cases := []struct {
		name       string
		collection string
		mutate     func(*models.IngestItem)
	}{
		{"different text", "personal", func(i *models.IngestItem) { i.Text = "the user moved to Porto" }},
		{"different session", "personal", func(i *models.IngestItem) { i.SessionID = "s2" }},
		{"different chunk", "personal", func(i *models.IngestItem) { i.ChunkIndex = 1 }},
		{"different origin", "personal", func(i *models.IngestItem) { i.OriginRef = "msg-43" }},
		{"different collection", "work", func(i *models.IngestItem) {}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item := base
			tc.mutate(&item)
			if got := DeriveFactID(tc.collection, &item); got == baseID {
				t.Errorf("id should differ from base")
			}
		})
	}
}

func TestDeriveFactIDIgnoresNonIdentityFields(t *testing.T) {
	base := models.IngestItem{
		Text:      "the user moved to Lisbon",
		UserID:    "u1",
		SessionID: "s1",
		Role:      "user",
	}
	baseID := DeriveFactID("personal", &base)

	item := base
	item.TS = 12345
	item.Tags = []string{"relocation"}
	item.Metadata = map[string]string{"category": "life"}

	if got := DeriveFactID("personal", &item); got != baseID {
		t.Errorf("timestamps, tags and metadata must not change the id")
	}
}
