package catalog_test

import (
	"context"
	"testing"

	"marketchat/backend/internal/catalog"
	"marketchat/backend/internal/storage"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDirectory(t *testing.T) (*catalog.Directory, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	cfg := storage.GormConfig()
	cfg.Logger = logger.Discard
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), cfg)
	require.NoError(t, err)
	return catalog.NewDirectory(db), mock
}

func TestDirectory_ProviderProfileScansCategoryArray(t *testing.T) {
	d, mock := newMockDirectory(t)

	mock.ExpectQuery(`SELECT "id","business_name","categories" FROM "providers" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "business_name", "categories"}).
			AddRow("P1", "Acme Plumbing", "{plumbing,heating}"))

	p, err := d.Profile(context.Background(), "P1", true)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NotNil(t, p.Name)
	assert.Equal(t, "Acme Plumbing", *p.Name)
	assert.Equal(t, []string{"plumbing", "heating"}, p.Categories)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectory_UserProfile(t *testing.T) {
	d, mock := newMockDirectory(t)

	mock.ExpectQuery(`SELECT "id","first_name","last_name" FROM "users" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_name", "last_name"}).
			AddRow("U1", "Ada", "Lovelace"))

	p, err := d.Profile(context.Background(), "U1", false)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Ada Lovelace", *p.Name)
	assert.Empty(t, p.Categories)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectory_UnknownIdentityHasNoProfile(t *testing.T) {
	d, mock := newMockDirectory(t)

	mock.ExpectQuery(`FROM "providers"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "business_name", "categories"}))

	p, err := d.Profile(context.Background(), "P9", true)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}
