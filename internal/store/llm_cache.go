package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json/v2"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	domainerrors "github.com/fieldmapapp/fieldmap-server/internal/errors"
)

// llmCachePrefix keys cached reasoner verdicts. The same ambiguous column
// name recurs across uploads, so verdicts are reused until their TTL lapses.
const llmCachePrefix = "llmcache:"

// LLMVerdict is a cached reasoner answer for one (entity, source text) pair.
type LLMVerdict struct {
	TargetField string    `json:"target_field"`
	Confidence  float64   `json:"confidence"`
	Reasoning   string    `json:"reasoning,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func llmCacheKey(entity, sourceText string) string {
	// Source text is user-controlled; hash it so it cannot break key layout.
	sum := sha256.Sum256([]byte(sourceText))
	return llmCachePrefix + entity + ":" + hex.EncodeToString(sum[:16])
}

// PutLLMVerdict caches a verdict with the given TTL. Badger expires the
// entry itself, no sweeper needed.
func (s *Store) PutLLMVerdict(ctx context.Context, entity, sourceText string, verdict LLMVerdict, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if verdict.CreatedAt.IsZero() {
		verdict.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(&verdict)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(llmCacheKey(entity, sourceText)), data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

// GetLLMVerdict returns the cached verdict or errors.ErrNotFound once the
// entry expired or was never written.
func (s *Store) GetLLMVerdict(ctx context.Context, entity, sourceText string) (*LLMVerdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var verdict LLMVerdict
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(llmCacheKey(entity, sourceText)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domainerrors.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &verdict)
		})
	})
	if err != nil {
		return nil, err
	}
	return &verdict, nil
}
