package ingest

import (
	"crypto/sha256"
	"fmt"

	"github.com/shimonpozd/astra-sub000/internal/models"
)

// DeriveFactID computes the stable fact id of an ingest item. The id is
// a content hash over the item's identity fields, so re-ingesting the
// same text at the same position yields the same id and the upsert
// replaces instead of duplicating.
func DeriveFactID(collection string, item *models.IngestItem) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%d|%s",
		item.SessionID,
		collection,
		item.OriginRef,
		item.Role,
		item.ChunkIndex,
		item.Text,
	)))
	return fmt.Sprintf("%x", sum)
}
