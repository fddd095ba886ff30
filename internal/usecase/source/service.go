package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"regwatch/internal/domain/entity"
	"regwatch/internal/repository"
)

// DefaultCheckFrequency applies when a registration omits the cadence.
const DefaultCheckFrequency = 24 * time.Hour

// RegisterInput represents the input parameters for registering a source.
type RegisterInput struct {
	URL            string
	Jurisdiction   string
	Agency         string
	CheckFrequency time.Duration
}

// Service provides source registry use cases.
type Service struct {
	Repo repository.SourceRepository

	// AllowPrivate admits URLs on loopback or private networks.
	AllowPrivate bool
	// Clock and NewID default to time.Now and uuid.NewString.
	Clock func() time.Time
	NewID func() string
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

// Register validates and stores a new active source.
// Returns a ValidationError for bad input and ErrDuplicateSource when the URL
// is already registered.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*entity.Source, error) {
	if in.CheckFrequency == 0 {
		in.CheckFrequency = DefaultCheckFrequency
	}
	src := &entity.Source{
		URL:            strings.TrimSpace(in.URL),
		Jurisdiction:   strings.ToUpper(strings.TrimSpace(in.Jurisdiction)),
		Agency:         strings.TrimSpace(in.Agency),
		CheckFrequency: in.CheckFrequency,
		Active:         true,
		CreatedAt:      s.now(),
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if err := entity.ValidateURL(src.URL, s.AllowPrivate); err != nil {
		return nil, fmt.Errorf("validate source URL: %w", err)
	}

	existing, err := s.Repo.GetByURL(ctx, src.URL)
	if err != nil {
		return nil, fmt.Errorf("get source by url: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, src.URL)
	}
	src.ID = s.newID()

	if err := s.Repo.Create(ctx, src); err != nil {
		return nil, fmt.Errorf("create source: %w", err)
	}
	return src, nil
}

// Get returns a source by id, or ErrSourceNotFound.
func (s *Service) Get(ctx context.Context, id string) (*entity.Source, error) {
	src, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	if src == nil {
		return nil, ErrSourceNotFound
	}
	return src, nil
}

// List returns all sources, or only active ones.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]*entity.Source, error) {
	var (
		sources []*entity.Source
		err     error
	)
	if activeOnly {
		sources, err = s.Repo.ListActive(ctx)
	} else {
		sources, err = s.Repo.List(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

// Deactivate removes a source from scheduling. History is kept.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return &entity.ValidationError{Field: "id", Message: "is required"}
	}
	if err := s.Repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return ErrSourceNotFound
		}
		return fmt.Errorf("deactivate source: %w", err)
	}
	return nil
}

// Due returns active sources whose next check is at or before now and that
// have no job in flight.
func (s *Service) Due(ctx context.Context, now time.Time) ([]*entity.Source, error) {
	sources, err := s.Repo.ListDue(ctx, now, 0)
	if err != nil {
		return nil, fmt.Errorf("list due sources: %w", err)
	}
	return sources, nil
}

// MarkChecked advances last_checked_at after a completed job.
func (s *Service) MarkChecked(ctx context.Context, id string, at time.Time) error {
	if err := s.Repo.TouchCheckedAt(ctx, id, at); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return ErrSourceNotFound
		}
		return fmt.Errorf("touch source checked_at: %w", err)
	}
	return nil
}
