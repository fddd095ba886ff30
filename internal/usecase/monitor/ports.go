package monitor

import (
	"context"
	"time"

	"regwatch/internal/domain/entity"
)

// FetchResult is the extracted text of one source plus fetch metadata.
type FetchResult struct {
	Content     string
	ContentType string
	FetchedAt   time.Time
}

// Fetcher retrieves a source URL and converts it to plain text.
// Errors may implement FailureKind() entity.FailureKind; otherwise the
// retry package infers the kind.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// SourceMetadata is the context handed to a classifier alongside content.
type SourceMetadata struct {
	SourceID     string
	URL          string
	Jurisdiction string
	Agency       string
	Kind         entity.ChangeKind
	SizeDelta    int64
}

// Classifier judges the compliance relevance of changed content.
// Failures are reported through the Err arm, never by panicking or by
// returning a partially filled classification.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, content string, meta SourceMetadata) entity.ClassificationResult
}

// ChangeNotifier announces classified changes. Implementations are expected
// to return quickly and deliver asynchronously.
type ChangeNotifier interface {
	NotifyChange(ctx context.Context, src *entity.Source, rec *entity.ChangeRecord) error
}

func metadataFor(src *entity.Source, rec *entity.ChangeRecord) SourceMetadata {
	return SourceMetadata{
		SourceID:     src.ID,
		URL:          src.URL,
		Jurisdiction: src.Jurisdiction,
		Agency:       src.Agency,
		Kind:         rec.Kind,
		SizeDelta:    rec.SizeDelta,
	}
}
