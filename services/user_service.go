package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/rallyrank/rallyrank-api/models"
	"github.com/rallyrank/rallyrank-api/repositories"
	"github.com/rallyrank/rallyrank-api/storage"
)

var allowedPhotoTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// UserService serves profiles, the rating leaderboard and profile photo
// uploads.
type UserService struct {
	users    repositories.UserRepository
	results  repositories.ResultRepository
	uploader storage.FileUploader
	logger   *slog.Logger
}

func NewUserService(users repositories.UserRepository, results repositories.ResultRepository, uploader storage.FileUploader, logger *slog.Logger) *UserService {
	return &UserService{users: users, results: results, uploader: uploader, logger: logger}
}

func (s *UserService) Get(ctx context.Context, userID int) (*models.User, error) {
	user, err := s.users.GetByID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	s.attachPhotoURL(user)
	return user, nil
}

type UpdateProfileInput struct {
	Name      string `json:"name"`
	Bio       string `json:"bio"`
	PlayStyle string `json:"play_style"`
}

func (s *UserService) UpdateProfile(ctx context.Context, userID int, input UpdateProfileInput) (*models.User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Name = strings.TrimSpace(input.Name)
	user.Bio = strings.TrimSpace(input.Bio)
	user.PlayStyle = strings.TrimSpace(input.PlayStyle)
	if err := s.users.UpdateProfile(ctx, nil, user); err != nil {
		return nil, err
	}
	return user, nil
}

// UploadPhoto stores a new profile photo in the object store and replaces
// the previous one. Best-effort delete of the old object; a dangling old
// photo is not worth failing the request over.
func (s *UserService) UploadPhoto(ctx context.Context, userID int, contentType string, body io.Reader) (*models.User, error) {
	if s.uploader == nil {
		return nil, fmt.Errorf("%w: photo storage is not configured", ErrValidationFailed)
	}
	ext, ok := allowedPhotoTypes[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported photo content type %q", ErrValidationFailed, contentType)
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	key := path.Join("users", fmt.Sprintf("%d", userID), fmt.Sprintf("photo-%d%s", time.Now().UnixNano(), ext))
	result, err := s.uploader.Upload(ctx, key, contentType, body)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdatePhotoKey(ctx, nil, userID, &result.Key); err != nil {
		return nil, err
	}

	if user.PhotoKey != nil && *user.PhotoKey != result.Key {
		if err := s.uploader.Delete(ctx, *user.PhotoKey); err != nil {
			s.logger.Warn("failed to delete previous profile photo", "user_id", userID, "key", *user.PhotoKey, "error", err)
		}
	}

	user.PhotoKey = &result.Key
	s.attachPhotoURL(user)
	return user, nil
}

// EloLeaderboard ranks players with at least one game by rating.
func (s *UserService) EloLeaderboard(ctx context.Context, limit int) ([]*models.User, error) {
	if limit <= 0 {
		limit = 25
	}
	users, err := s.users.ListByEloRating(ctx, nil, limit)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		s.attachPhotoURL(u)
	}
	return users, nil
}

// TournamentHistory lists a player's past tournament results.
func (s *UserService) TournamentHistory(ctx context.Context, userID, limit int) ([]*models.TournamentResult, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.results.ListByUser(ctx, nil, userID, limit)
}

func (s *UserService) attachPhotoURL(user *models.User) {
	if s.uploader == nil || user.PhotoKey == nil {
		return
	}
	url := s.uploader.GetPublicURL(*user.PhotoKey)
	if url != "" {
		user.PhotoURL = &url
	}
}
