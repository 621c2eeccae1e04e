package archive

import (
	"context"
)

// Document is one rendered story ready for cold storage
type Document struct {
	StoryID int64
	ShortID string
	JSON    []byte
}

// Sink durably persists archive documents grouped by partition key. After a
// group has been durably written, onComplete is invoked with that group's key;
// callers delete from primary storage only inside that callback, so deletion
// is strictly dependent on a confirmed write.
type Sink interface {
	Write(ctx context.Context, groups map[string][]Document, onComplete func(group string)) error
}
