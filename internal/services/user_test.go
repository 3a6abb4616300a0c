package services

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/userhub/apiserver/internal/events"
	"github.com/userhub/apiserver/internal/store"
	"github.com/userhub/apiserver/internal/validation"
	"github.com/userhub/apiserver/types"
)

// fakeUserRepo mimics the Postgres repository semantics in memory,
// including the unique-index backstop on email and username.
type fakeUserRepo struct {
	users  map[int]types.User
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[int]types.User{}, nextID: 1}
}

func (f *fakeUserRepo) ListActive(ctx context.Context) ([]types.User, error) {
	var users []types.User
	for _, user := range f.users {
		if user.IsActive {
			users = append(users, user)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	for _, user := range f.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUserRepo) GetByUsername(ctx context.Context, username string) (types.User, error) {
	for _, user := range f.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUserRepo) Search(ctx context.Context, keyword string) ([]types.User, error) {
	needle := strings.ToLower(keyword)
	var users []types.User
	for _, user := range f.users {
		if !user.IsActive {
			continue
		}
		if strings.Contains(strings.ToLower(user.Email), needle) ||
			strings.Contains(strings.ToLower(user.Username), needle) ||
			strings.Contains(strings.ToLower(user.FullName), needle) {
			users = append(users, user)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (f *fakeUserRepo) Insert(ctx context.Context, dto types.CreateUser) (types.User, error) {
	if _, err := f.GetByEmail(ctx, dto.Email); err == nil {
		return types.User{}, store.ErrDuplicateEmail
	}
	if _, err := f.GetByUsername(ctx, dto.Username); err == nil {
		return types.User{}, store.ErrDuplicateUsername
	}

	now := time.Now()
	user := types.User{
		ID:           f.nextID,
		Email:        dto.Email,
		Username:     dto.Username,
		FullName:     dto.FullName,
		PasswordHash: "bcrypt$" + dto.Password,
		AvatarURL:    dto.AvatarURL,
		Bio:          dto.Bio,
		Role:         dto.Role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.users[user.ID] = user
	f.nextID++
	return user, nil
}

func (f *fakeUserRepo) ApplyUpdate(ctx context.Context, id int, patch types.UserPatch) (types.User, error) {
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	if patch.IsEmpty() {
		return user, nil
	}

	if patch.Email != nil {
		user.Email = *patch.Email
	}
	if patch.Username != nil {
		user.Username = *patch.Username
	}
	if patch.FullName != nil {
		user.FullName = *patch.FullName
	}
	if patch.Password != nil {
		user.PasswordHash = "bcrypt$" + *patch.Password
	}
	if patch.AvatarURL != nil {
		user.AvatarURL = patch.AvatarURL
	}
	if patch.Bio != nil {
		user.Bio = patch.Bio
	}
	if patch.Role != nil {
		user.Role = *patch.Role
	}
	if patch.IsActive != nil {
		user.IsActive = *patch.IsActive
	}
	user.UpdatedAt = time.Now().Add(time.Second)

	f.users[id] = user
	return user, nil
}

func (f *fakeUserRepo) Delete(ctx context.Context, id int) error {
	if _, ok := f.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUserRepo) SoftDelete(ctx context.Context, id int) (types.User, error) {
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.IsActive = false
	user.UpdatedAt = time.Now().Add(time.Second)
	f.users[id] = user
	return user, nil
}

type fakePublisher struct {
	published []events.Event
}

func (f *fakePublisher) Publish(ctx context.Context, event events.Event) error {
	f.published = append(f.published, event)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func newTestService() (*UserService, *fakeUserRepo, *fakePublisher) {
	repo := newFakeUserRepo()
	publisher := &fakePublisher{}
	return NewUserService(repo, publisher, nil), repo, publisher
}

func createDTO() types.CreateUser {
	return types.CreateUser{
		Email:    "a@b.com",
		Username: "abc",
		FullName: "A B",
		Password: "secret1",
		Role:     types.DefaultRole,
	}
}

func TestCreateUser(t *testing.T) {
	svc, _, publisher := newTestService()
	ctx := context.Background()

	user, err := svc.Create(ctx, createDTO())
	require.NoError(t, err)

	assert.Equal(t, "a@b.com", user.Email)
	assert.Equal(t, "abc", user.Username)
	assert.Equal(t, "user", user.Role)
	assert.True(t, user.IsActive)
	assert.NotEqual(t, "secret1", user.PasswordHash)

	require.Len(t, publisher.published, 1)
	assert.Equal(t, events.UserCreated, publisher.published[0].Name)
	assert.Equal(t, user.ID, publisher.published[0].UserID)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, createDTO())
	require.NoError(t, err)

	dup := createDTO()
	dup.Username = "other"
	_, err = svc.Create(ctx, dup)
	assert.ErrorIs(t, err, store.ErrDuplicateEmail)
}

func TestCreateUserDuplicateEmailIgnoresCase(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, createDTO())
	require.NoError(t, err)

	dup := createDTO()
	dup.Email = "A@B.COM"
	dup.Username = "other"
	_, err = svc.Create(ctx, dup)
	assert.ErrorIs(t, err, store.ErrDuplicateEmail)
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, createDTO())
	require.NoError(t, err)

	dup := createDTO()
	dup.Email = "other@b.com"
	_, err = svc.Create(ctx, dup)
	assert.ErrorIs(t, err, store.ErrDuplicateUsername)
}

func TestUpdateUserNotFound(t *testing.T) {
	svc, _, _ := newTestService()

	bio := "hi"
	_, err := svc.Update(context.Background(), 42, types.UserPatch{Bio: &bio})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateUserPartialPatch(t *testing.T) {
	svc, _, publisher := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, createDTO())
	require.NoError(t, err)

	bio := "hi"
	updated, err := svc.Update(ctx, created.ID, types.UserPatch{Bio: &bio})
	require.NoError(t, err)

	require.NotNil(t, updated.Bio)
	assert.Equal(t, "hi", *updated.Bio)
	assert.Equal(t, created.Email, updated.Email)
	assert.Equal(t, created.Username, updated.Username)
	assert.Equal(t, created.FullName, updated.FullName)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	require.Len(t, publisher.published, 2)
	assert.Equal(t, events.UserUpdated, publisher.published[1].Name)
}

func TestUpdateUserEmptyPatchIsNoOp(t *testing.T) {
	svc, _, publisher := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, createDTO())
	require.NoError(t, err)

	updated, err := svc.Update(ctx, created.ID, types.UserPatch{})
	require.NoError(t, err)

	assert.Equal(t, created, updated)
	assert.Equal(t, created.UpdatedAt, updated.UpdatedAt)
	assert.Len(t, publisher.published, 1)
}

func TestUpdateUserEmailConflict(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	first, err := svc.Create(ctx, createDTO())
	require.NoError(t, err)

	second := createDTO()
	second.Email = "c@d.com"
	second.Username = "cde"
	other, err := svc.Create(ctx, second)
	require.NoError(t, err)

	email := first.Email
	_, err = svc.Update(ctx, other.ID, types.UserPatch{Email: &email})
	assert.ErrorIs(t, err, store.ErrDuplicateEmail)

	// Re-submitting a user's own email is not a conflict.
	own := other.Email
	_, err = svc.Update(ctx, other.ID, types.UserPatch{Email: &own})
	assert.NoError(t, err)
}

func TestUpdateUserUsernameConflict(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	first, err := svc.Create(ctx, createDTO())
	require.NoError(t, err)

	second := createDTO()
	second.Email = "c@d.com"
	second.Username = "cde"
	other, err := svc.Create(ctx, second)
	require.NoError(t, err)

	username := first.Username
	_, err = svc.Update(ctx, other.ID, types.UserPatch{Username: &username})
	assert.ErrorIs(t, err, store.ErrDuplicateUsername)
}

func TestDeleteUser(t *testing.T) {
	svc, _, publisher := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, createDTO())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID))
	assert.ErrorIs(t, svc.Delete(ctx, created.ID), store.ErrNotFound)

	_, err = svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.Len(t, publisher.published, 2)
	assert.Equal(t, events.UserDeleted, publisher.published[1].Name)
}

func TestDeleteUserNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	assert.ErrorIs(t, svc.Delete(context.Background(), 42), store.ErrNotFound)
}

func TestSoftDeleteUser(t *testing.T) {
	svc, _, publisher := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, createDTO())
	require.NoError(t, err)

	deactivated, err := svc.SoftDelete(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)

	// Gone from listings and search, still reachable by id.
	listed, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed)

	found, err := svc.Search(ctx, "abc")
	require.NoError(t, err)
	assert.Empty(t, found)

	fetched, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, fetched.IsActive)

	require.Len(t, publisher.published, 2)
	assert.Equal(t, events.UserDeactivated, publisher.published[1].Name)
}

func TestSoftDeleteUserNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.SoftDelete(context.Background(), 42)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	first, err := svc.Create(ctx, createDTO())
	require.NoError(t, err)

	second := createDTO()
	second.Email = "c@d.com"
	second.Username = "cde"
	newer, err := svc.Create(ctx, second)
	require.NoError(t, err)

	// Force distinct creation times.
	user := repo.users[newer.ID]
	user.CreatedAt = first.CreatedAt.Add(time.Minute)
	repo.users[newer.ID] = user

	listed, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, newer.ID, listed[0].ID)
	assert.Equal(t, first.ID, listed[1].ID)
}

func TestSearchKeywordBounds(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	var validationErr *validation.Error
	_, err := svc.Search(ctx, "")
	assert.ErrorAs(t, err, &validationErr)

	_, err = svc.Search(ctx, strings.Repeat("x", 101))
	assert.ErrorAs(t, err, &validationErr)
}

func TestSearchMatchesCaseInsensitively(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, createDTO())
	require.NoError(t, err)

	found, err := svc.Search(ctx, "ABC")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, created.ID, found[0].ID)
}

func TestUploadAvatarWithoutStorage(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.UploadAvatar(context.Background(), 1, strings.NewReader("img"), 3, "image/png")
	assert.ErrorIs(t, err, ErrStorageDisabled)
}

func TestGetAvatarWithoutStorage(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.GetAvatar(context.Background(), 1)
	assert.ErrorIs(t, err, ErrStorageDisabled)
}
