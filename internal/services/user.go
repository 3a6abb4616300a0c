package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/userhub/apiserver/internal/events"
	"github.com/userhub/apiserver/internal/storage"
	"github.com/userhub/apiserver/internal/store"
	"github.com/userhub/apiserver/internal/validation"
	"github.com/userhub/apiserver/types"
)

// ErrStorageDisabled is returned when an avatar operation is requested but
// no object storage backend is configured.
var ErrStorageDisabled = errors.New("avatar storage is not configured")

// UserRepository defines persistence operations for users.
type UserRepository interface {
	ListActive(ctx context.Context) ([]types.User, error)
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Search(ctx context.Context, keyword string) ([]types.User, error)
	Insert(ctx context.Context, dto types.CreateUser) (types.User, error)
	ApplyUpdate(ctx context.Context, id int, patch types.UserPatch) (types.User, error)
	Delete(ctx context.Context, id int) error
	SoftDelete(ctx context.Context, id int) (types.User, error)
}

// UserService encapsulates user use-cases. The event publisher and avatar
// storage are optional; a nil value disables the corresponding feature.
type UserService struct {
	repo    UserRepository
	events  events.Publisher
	avatars storage.ObjectStorage
}

func NewUserService(repo UserRepository, publisher events.Publisher, avatars storage.ObjectStorage) *UserService {
	return &UserService{
		repo:    repo,
		events:  publisher,
		avatars: avatars,
	}
}

// List returns all active users, newest first.
func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	return s.repo.ListActive(ctx)
}

// Get returns a user by id, including soft-deleted ones.
func (s *UserService) Get(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// Search returns active users matching the keyword.
func (s *UserService) Search(ctx context.Context, keyword string) ([]types.User, error) {
	if err := validation.Keyword(keyword); err != nil {
		return nil, err
	}
	return s.repo.Search(ctx, keyword)
}

// Create inserts a new user after checking that neither the email nor the
// username is already taken. The unique indexes back up these checks under
// concurrent creates.
func (s *UserService) Create(ctx context.Context, dto types.CreateUser) (types.User, error) {
	if err := s.checkEmailFree(ctx, dto.Email, 0); err != nil {
		return types.User{}, err
	}
	if err := s.checkUsernameFree(ctx, dto.Username, 0); err != nil {
		return types.User{}, err
	}

	user, err := s.repo.Insert(ctx, dto)
	if err != nil {
		return types.User{}, err
	}

	s.publish(ctx, events.NewEvent(events.UserCreated, user.ID, user.Email))
	return user, nil
}

// Update applies a partial update. Email and username collisions with a
// different user are rejected; an empty patch is a no-op returning the
// current record unchanged.
func (s *UserService) Update(ctx context.Context, id int, patch types.UserPatch) (types.User, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}

	if patch.Email != nil {
		if err := s.checkEmailFree(ctx, *patch.Email, id); err != nil {
			return types.User{}, err
		}
	}
	if patch.Username != nil {
		if err := s.checkUsernameFree(ctx, *patch.Username, id); err != nil {
			return types.User{}, err
		}
	}

	if patch.IsEmpty() {
		return current, nil
	}

	user, err := s.repo.ApplyUpdate(ctx, id, patch)
	if err != nil {
		return types.User{}, err
	}

	s.publish(ctx, events.NewEvent(events.UserUpdated, user.ID, user.Email))
	return user, nil
}

// Delete removes a user permanently.
func (s *UserService) Delete(ctx context.Context, id int) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.publish(ctx, events.NewEvent(events.UserDeleted, current.ID, current.Email))
	return nil
}

// SoftDelete marks a user inactive, removing it from listings while
// keeping the row reachable by id.
func (s *UserService) SoftDelete(ctx context.Context, id int) (types.User, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return types.User{}, err
	}

	user, err := s.repo.SoftDelete(ctx, id)
	if err != nil {
		return types.User{}, err
	}

	s.publish(ctx, events.NewEvent(events.UserDeactivated, user.ID, user.Email))
	return user, nil
}

// UploadAvatar stores the avatar image and points the user's avatar_url at
// the serving endpoint.
func (s *UserService) UploadAvatar(ctx context.Context, id int, r io.Reader, size int64, contentType string) (types.User, error) {
	if s.avatars == nil {
		return types.User{}, ErrStorageDisabled
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return types.User{}, err
	}

	if err := s.avatars.Put(ctx, avatarKey(id), r, size, contentType); err != nil {
		return types.User{}, fmt.Errorf("store avatar: %w", err)
	}

	avatarURL := fmt.Sprintf("/users/%d/avatar", id)
	return s.repo.ApplyUpdate(ctx, id, types.UserPatch{AvatarURL: &avatarURL})
}

// GetAvatar opens the stored avatar image for a user.
func (s *UserService) GetAvatar(ctx context.Context, id int) (io.ReadCloser, error) {
	if s.avatars == nil {
		return nil, ErrStorageDisabled
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.avatars.Get(ctx, avatarKey(id))
}

func (s *UserService) checkEmailFree(ctx context.Context, email string, selfID int) error {
	existing, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		if existing.ID != selfID {
			return store.ErrDuplicateEmail
		}
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func (s *UserService) checkUsernameFree(ctx context.Context, username string, selfID int) error {
	existing, err := s.repo.GetByUsername(ctx, username)
	if err == nil {
		if existing.ID != selfID {
			return store.ErrDuplicateUsername
		}
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// publish delivers an event best-effort; broker failures are logged and
// never surfaced to the caller.
func (s *UserService) publish(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		logrus.WithError(err).WithField("event", event.Name).Warn("failed to publish user event")
	}
}

func avatarKey(id int) string {
	return fmt.Sprintf("avatars/%d", id)
}
