package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tastebud/internal/store"
)

// ErrNotFound is returned when deleting a profile that does not exist.
var ErrNotFound = errors.New("profile not found")

// Service owns reads and writes of taste profiles.
type Service struct {
	repo store.Repository[UserProfile]
	now  func() time.Time
}

func NewService(repo store.Repository[UserProfile]) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Get returns the stored profile for userID, creating and persisting an
// empty one on first access.
func (s *Service) Get(ctx context.Context, userID string) (*UserProfile, error) {
	p, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if p != nil {
		return p, nil
	}

	p, err = s.repo.Update(ctx, userID, func(current *UserProfile) (*UserProfile, error) {
		if current != nil {
			return nil, nil
		}
		created := Default(userID)
		created.UpdatedAt = s.now().UTC()
		return created, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return p, nil
}

// Update applies a partial update and returns the stored result.
func (s *Service) Update(ctx context.Context, userID string, u Update) (*UserProfile, error) {
	p, err := s.repo.Update(ctx, userID, func(current *UserProfile) (*UserProfile, error) {
		if current == nil {
			current = Default(userID)
		}
		u.Apply(current)
		current.UserID = userID
		current.UpdatedAt = s.now().UTC()
		return current, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, userID string) error {
	err := s.repo.Delete(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}
