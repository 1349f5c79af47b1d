package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillpress/quill-server/internal/auth"
	"github.com/quillpress/quill-server/internal/domain"
	domainerrors "github.com/quillpress/quill-server/internal/errors"
)

func TestAuthService_Signup(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	res, err := env.auth.Signup(ctx, SignupInput{Name: "Ann", Email: "ann@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Account created successfully", res.Message)
	assert.NotZero(t, res.User.ID)
	assert.Equal(t, domain.RoleAuthor, res.User.Role)
	require.NotNil(t, res.User.PasswordHash)
	assert.NotEqual(t, "secret1", *res.User.PasswordHash)

	verified, ok := env.signer.Verify(res.Token).(auth.Verified)
	require.True(t, ok)
	assert.Equal(t, res.User.ID, verified.Identity.UserID)
	assert.Equal(t, []string{"author"}, verified.Identity.Roles)
	assert.ElementsMatch(t, []string{"posts:create", "posts:update", "posts:delete"}, verified.Identity.Permissions)

	_, err = env.auth.Signup(ctx, SignupInput{Name: "Ann Again", Email: "ann@x.com", Password: "secret2"})
	require.Error(t, err)
	derr := domainerrors.From(err)
	assert.Equal(t, domainerrors.TypeConflict, derr.Type)
	assert.Equal(t, "Email already registered", derr.Message)
}

func TestAuthService_SignupMultibytePasswordAtLimit(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	password := strings.Repeat("é", 36)
	_, err := env.auth.Signup(ctx, SignupInput{Name: "Zoé", Email: "zoe@x.com", Password: password})
	require.NoError(t, err)

	res, err := env.auth.Login(ctx, LoginInput{Email: "zoe@x.com", Password: password})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestAuthService_Login(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	_, err := env.auth.Signup(ctx, SignupInput{Name: "Ann", Email: "ann@x.com", Password: "secret1"})
	require.NoError(t, err)

	res, err := env.auth.Login(ctx, LoginInput{Email: "ann@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "Login successful", res.Message)
	assert.NotEmpty(t, res.Token)
}

func TestAuthService_LoginEnumerationResistance(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	_, err := env.auth.Signup(ctx, SignupInput{Name: "Ann", Email: "ann@x.com", Password: "secret1"})
	require.NoError(t, err)

	_, unknownErr := env.auth.Login(ctx, LoginInput{Email: "nobody@x.com", Password: "secret1"})
	_, wrongErr := env.auth.Login(ctx, LoginInput{Email: "ann@x.com", Password: "wrong-password"})

	require.Error(t, unknownErr)
	require.Error(t, wrongErr)
	unknown := domainerrors.From(unknownErr)
	wrong := domainerrors.From(wrongErr)
	assert.Equal(t, domainerrors.TypeUnauthorized, unknown.Type)
	assert.Equal(t, unknown.Type, wrong.Type)
	assert.Equal(t, "Invalid email or password", unknown.Message)
	assert.Equal(t, unknown.Message, wrong.Message)
}

func TestAuthService_LoginDeactivated(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	hash, err := auth.BcryptHasher{Cost: 4}.Hash("secret1")
	require.NoError(t, err)
	_, err = env.store.CreateUser(ctx, &domain.NewUser{
		Name: "Inactive", Email: "off@x.com", PasswordHash: &hash, Role: domain.RoleAuthor, IsActive: false,
	})
	require.NoError(t, err)

	_, err = env.auth.Login(ctx, LoginInput{Email: "off@x.com", Password: "secret1"})
	require.Error(t, err)
	derr := domainerrors.From(err)
	assert.Equal(t, domainerrors.TypeForbidden, derr.Type)
	assert.Equal(t, "Your account has been deactivated", derr.Message)
}

func TestAuthService_PasswordlessLogin(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	author := env.author(t, "Demo Author")

	res, err := env.auth.Login(ctx, LoginInput{Email: author.Email, Password: "anything"})
	require.NoError(t, err)
	assert.Equal(t, author.ID, res.User.ID)

	strict := NewAuthService(env.store, env.auth.hasher, env.signer, false, env.auth.logger)
	_, err = strict.Login(ctx, LoginInput{Email: author.Email, Password: "anything"})
	require.Error(t, err)
	assert.Equal(t, "Invalid email or password", domainerrors.From(err).Message)
}

func TestAuthService_AdminGrants(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	hash, err := auth.BcryptHasher{Cost: 4}.Hash("rootpass")
	require.NoError(t, err)
	_, err = env.store.CreateUser(ctx, &domain.NewUser{
		Name: "Admin", Email: "admin@x.com", PasswordHash: &hash, Role: domain.RoleAdmin, IsActive: true,
	})
	require.NoError(t, err)

	res, err := env.auth.Login(ctx, LoginInput{Email: "admin@x.com", Password: "rootpass"})
	require.NoError(t, err)

	verified, ok := env.signer.Verify(res.Token).(auth.Verified)
	require.True(t, ok)
	assert.True(t, verified.Identity.IsAdmin())
	assert.True(t, verified.Identity.HasPermission(domain.PermCategoriesManage))
	assert.True(t, verified.Identity.HasPermission(domain.PermUsersManage))
}
