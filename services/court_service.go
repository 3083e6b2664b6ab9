package services

import (
	"context"
	"errors"

	"github.com/rallyrank/rallyrank-api/models"
	"github.com/rallyrank/rallyrank-api/repositories"
)

// CourtService is the read side of the court catalog.
type CourtService struct {
	courts repositories.CourtRepository
}

func NewCourtService(courts repositories.CourtRepository) *CourtService {
	return &CourtService{courts: courts}
}

func (s *CourtService) Get(ctx context.Context, courtID int) (*models.Court, error) {
	court, err := s.courts.GetByID(ctx, nil, courtID)
	if err != nil {
		if errors.Is(err, repositories.ErrCourtNotFound) {
			return nil, ErrCourtNotFound
		}
		return nil, err
	}
	return court, nil
}

func (s *CourtService) List(ctx context.Context, city string, limit, offset int) ([]*models.Court, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.courts.List(ctx, nil, city, limit, offset)
}
