package postgres

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	upErr      error
	stepsErr   error
	version    uint
	dirty      bool
	versionErr error
	steps      []int
	closed     bool
}

func (f *fakeMigrator) Up() error { return f.upErr }

func (f *fakeMigrator) Steps(n int) error {
	f.steps = append(f.steps, n)
	return f.stepsErr
}

func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, f.dirty, f.versionErr }

func (f *fakeMigrator) Close() (error, error) {
	f.closed = true
	return nil, nil
}

func withFakeMigrator(t *testing.T, f *fakeMigrator, openErr error) *[2]string {
	t.Helper()
	orig := newMigrate
	t.Cleanup(func() { newMigrate = orig })
	var got [2]string
	newMigrate = func(sourceURL, dbURL string) (migrator, error) {
		got = [2]string{sourceURL, dbURL}
		if openErr != nil {
			return nil, openErr
		}
		return f, nil
	}
	return &got
}

func TestMigrateUp(t *testing.T) {
	f := &fakeMigrator{}
	got := withFakeMigrator(t, f, nil)

	require.NoError(t, MigrateUp("pgx5://u:p@db/casemind", "file://migrations"))
	assert.Equal(t, "file://migrations", got[0])
	assert.Equal(t, "pgx5://u:p@db/casemind", got[1])
	assert.True(t, f.closed)
}

func TestMigrateUp_NoChangeIsSuccess(t *testing.T) {
	withFakeMigrator(t, &fakeMigrator{upErr: migrate.ErrNoChange}, nil)
	assert.NoError(t, MigrateUp("pgx5://db", "file://migrations"))
}

func TestMigrateUp_Failures(t *testing.T) {
	withFakeMigrator(t, &fakeMigrator{upErr: errors.New("syntax error")}, nil)
	err := MigrateUp("pgx5://db", "file://migrations")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error")

	withFakeMigrator(t, nil, errors.New("no such directory"))
	err = MigrateUp("pgx5://db", "file://missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create migrate instance")
}

func TestRollbackMigration(t *testing.T) {
	f := &fakeMigrator{}
	withFakeMigrator(t, f, nil)

	require.NoError(t, RollbackMigration("pgx5://db", "file://migrations", 2))
	assert.Equal(t, []int{-2}, f.steps)

	assert.Error(t, RollbackMigration("pgx5://db", "file://migrations", 0))

	withFakeMigrator(t, &fakeMigrator{stepsErr: migrate.ErrNoChange}, nil)
	err := RollbackMigration("pgx5://db", "file://migrations", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no migrations to roll back")
}

func TestMigrationStatus(t *testing.T) {
	withFakeMigrator(t, &fakeMigrator{version: 1, dirty: true}, nil)
	v, dirty, err := MigrationStatus("pgx5://db", "file://migrations")
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.True(t, dirty)

	withFakeMigrator(t, &fakeMigrator{versionErr: migrate.ErrNilVersion}, nil)
	v, dirty, err = MigrationStatus("pgx5://db", "file://migrations")
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)

	withFakeMigrator(t, &fakeMigrator{versionErr: errors.New("locked")}, nil)
	_, _, err = MigrationStatus("pgx5://db", "file://migrations")
	assert.Error(t, err)
}

//Personal.AI order the ending
