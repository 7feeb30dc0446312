package discovery

import (
	"context"

	"go.uber.org/zap"

	"github.com/reflectdb/reflectdb/internal/introspect"
	"github.com/reflectdb/reflectdb/internal/schema"
)

// ViewService discovers database views when view discovery is enabled.
type ViewService struct {
	intro   introspect.Introspector
	enabled bool
	exclude map[string]struct{}
	logger  *zap.Logger
}

// NewViewService creates a view discovery service. When enabled is false,
// DiscoverViews returns nothing.
func NewViewService(intro introspect.Introspector, enabled bool, exclude []string, logger *zap.Logger) *ViewService {
	excluded := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		excluded[name] = struct{}{}
	}
	return &ViewService{intro: intro, enabled: enabled, exclude: excluded, logger: logger}
}

// DiscoverViews lists views with their column metadata. A listing failure is
// degraded to an empty view list with a warning: views are supplementary and
// must not abort table discovery.
func (s *ViewService) DiscoverViews(ctx context.Context) []schema.ViewInfo {
	if !s.enabled {
		return nil
	}

	views, err := s.intro.ListViews(ctx)
	if err != nil {
		s.logger.Warn("failed to discover views, treating as empty", zap.Error(err))
		return nil
	}

	kept := views[:0]
	for _, v := range views {
		if _, skip := s.exclude[v.Name]; skip {
			s.logger.Debug("view excluded from discovery", zap.String("view", v.Name))
			continue
		}
		kept = append(kept, v)
	}
	return kept
}
