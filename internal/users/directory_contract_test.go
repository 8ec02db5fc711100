package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runDirectoryContract checks the behaviour every Directory implementation
// must share. newDir returns an empty directory for each subtest.
func runDirectoryContract(t *testing.T, newDir func(t *testing.T) Directory) {
	create := func(t *testing.T, d Directory, email string) Principal {
		t.Helper()
		p, err := d.Create(context.Background(), NewUser{Email: email, FirstName: "Ada", LastName: "Lovelace"}, "secret1")
		require.NoError(t, err)
		return p
	}

	t.Run("create and find", func(t *testing.T) {
		ctx := context.Background()
		d := newDir(t)

		p := create(t, d, "  Ada@Example.COM ")
		assert.NotEmpty(t, p.ID)
		assert.Equal(t, "ada@example.com", p.Email)
		assert.True(t, p.Active)
		assert.Nil(t, p.LastLoginAt)

		byEmail, ok, err := d.FindByEmail(ctx, "ADA@example.com")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, p.ID, byEmail.ID)
		assert.Equal(t, "Ada", byEmail.FirstName)

		byID, ok, err := d.FindByID(ctx, p.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, p.Email, byID.Email)

		_, ok, err = d.FindByEmail(ctx, "nobody@example.com")
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, err = d.FindByID(ctx, "00000000-0000-0000-0000-000000000000")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("duplicate email", func(t *testing.T) {
		d := newDir(t)
		create(t, d, "ada@example.com")

		_, err := d.Create(context.Background(), NewUser{Email: "ADA@example.com"}, "another1")
		assert.ErrorIs(t, err, ErrDuplicateEmail)
	})

	t.Run("validation", func(t *testing.T) {
		d := newDir(t)
		_, err := d.Create(context.Background(), NewUser{Email: "not-an-email"}, "123")
		require.ErrorIs(t, err, ErrValidation)

		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Len(t, ve.Problems, 2)
	})

	t.Run("verify password", func(t *testing.T) {
		ctx := context.Background()
		d := newDir(t)
		p := create(t, d, "ada@example.com")

		ok, err := d.VerifyPassword(ctx, p, "secret1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = d.VerifyPassword(ctx, p, "wrong-password")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = d.VerifyPassword(ctx, Principal{ID: "00000000-0000-0000-0000-000000000000"}, "secret1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("roles replace whole set", func(t *testing.T) {
		ctx := context.Background()
		d := newDir(t)
		p := create(t, d, "ada@example.com")

		roles, err := d.RolesOf(ctx, p)
		require.NoError(t, err)
		assert.NotNil(t, roles)
		assert.Empty(t, roles)

		require.NoError(t, d.SetRoles(ctx, p, []string{"User", "Manager", "User"}))
		roles, err = d.RolesOf(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, []string{"Manager", "User"}, roles)

		require.NoError(t, d.SetRoles(ctx, p, []string{"Admin"}))
		roles, err = d.RolesOf(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, []string{"Admin"}, roles)

		require.NoError(t, d.SetRoles(ctx, p, nil))
		roles, err = d.RolesOf(ctx, p)
		require.NoError(t, err)
		assert.Empty(t, roles)
	})

	t.Run("unknown role keeps previous set", func(t *testing.T) {
		ctx := context.Background()
		d := newDir(t)
		p := create(t, d, "ada@example.com")
		require.NoError(t, d.SetRoles(ctx, p, []string{"User"}))

		assert.ErrorIs(t, d.SetRoles(ctx, p, []string{"Admin", "Wizard"}), ErrUnknownRole)

		roles, err := d.RolesOf(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, []string{"User"}, roles)
	})

	t.Run("unknown user", func(t *testing.T) {
		ctx := context.Background()
		d := newDir(t)
		ghost := Principal{ID: "00000000-0000-0000-0000-000000000000"}

		_, err := d.RolesOf(ctx, ghost)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, d.SetRoles(ctx, ghost, []string{"User"}), ErrNotFound)
		assert.ErrorIs(t, d.SetActive(ctx, ghost, false), ErrNotFound)
		assert.ErrorIs(t, d.RecordLogin(ctx, ghost, time.Now()), ErrNotFound)
		assert.ErrorIs(t, d.Delete(ctx, ghost), ErrNotFound)
	})

	t.Run("active flag and last login", func(t *testing.T) {
		ctx := context.Background()
		d := newDir(t)
		p := create(t, d, "ada@example.com")

		require.NoError(t, d.SetActive(ctx, p, false))
		at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
		require.NoError(t, d.RecordLogin(ctx, p, at))

		got, ok, err := d.FindByID(ctx, p.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.False(t, got.Active)
		require.NotNil(t, got.LastLoginAt)
		assert.True(t, got.LastLoginAt.Equal(at))
	})

	t.Run("delete and list", func(t *testing.T) {
		ctx := context.Background()
		d := newDir(t)
		a := create(t, d, "a@example.com")
		b := create(t, d, "b@example.com")
		c := create(t, d, "c@example.com")
		require.NoError(t, d.SetRoles(ctx, b, []string{"User"}))

		all, err := d.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{a.ID, b.ID, c.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

		require.NoError(t, d.Delete(ctx, b))
		assert.ErrorIs(t, d.Delete(ctx, b), ErrNotFound)

		_, err = d.RolesOf(ctx, b)
		assert.ErrorIs(t, err, ErrNotFound)

		_, ok, err := d.FindByEmail(ctx, "b@example.com")
		require.NoError(t, err)
		assert.False(t, ok)

		all, err = d.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		// the email is free again
		_, err = d.Create(ctx, NewUser{Email: "b@example.com"}, "secret1")
		assert.NoError(t, err)
	})
}
