package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/otcheredev/ris-viewer-manager/internal/models"
)

// Cache defines the cache interface
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context, pattern string) error
}

// SearchKey generates the cache key of a search against one archive as
// configured in the given connector generation. The archive list of the
// criteria is not part of the key.
func SearchKey(archiveID string, generation uint64, criteria models.SearchCriteria) string {
	criteria.Archive = nil
	raw, _ := json.Marshal(criteria)
	sum := sha256.Sum256(raw)
	return GenerationPrefix(archiveID, generation) + hex.EncodeToString(sum[:16])
}

// SearchPrefix is the key prefix shared by every search of an archive
func SearchPrefix(archiveID string) string {
	return "search:" + archiveID + ":"
}

// GenerationPrefix is the key prefix of the searches of one connector
// generation of an archive
func GenerationPrefix(archiveID string, generation uint64) string {
	return SearchPrefix(archiveID) + strconv.FormatUint(generation, 10) + ":"
}
