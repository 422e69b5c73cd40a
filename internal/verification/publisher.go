package verification

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"swarmgov/internal/logging"
)

// Publisher distributes a verified artifact and returns a locator for it.
// Errors propagate to the pipeline as step failures.
type Publisher interface {
	Publish(ctx context.Context, artifact string) (string, error)
}

// Saver is the slice of the store the publisher needs. *store.Store
// satisfies it.
type Saver interface {
	Save(key string, value interface{}) error
}

// LogPublisher records verified artifacts under a generated key and returns
// a synthetic locator. With a nil Saver it only logs.
type LogPublisher struct {
	Store Saver
}

// publishedArtifact is the persisted record for one published artifact.
type publishedArtifact struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

func (p *LogPublisher) Publish(ctx context.Context, artifact string) (string, error) {
	id := uuid.New().String()
	key := "artifact/" + id

	if p.Store != nil {
		if err := p.Store.Save(key, publishedArtifact{ID: id, Content: artifact}); err != nil {
			return "", fmt.Errorf("persist artifact %s: %w", id, err)
		}
	}

	logging.Get(logging.CategoryPipeline).Info("published artifact %s (%d characters)", id, len(artifact))
	return "swarmgov://" + key, nil
}
