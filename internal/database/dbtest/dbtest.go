// Package dbtest opens throwaway in-memory databases for package tests.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reporttrack/internal/database"
	"github.com/reporttrack/internal/models"
)

var seq int64

// New returns a Store over a fresh, migrated in-memory SQLite database.
func New(t testing.TB) *database.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, atomic.AddInt64(&seq, 1))

	db, err := database.Open(database.Config{Driver: "sqlite", Path: dsn}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return database.NewStore(db)
}

// Fixture is a minimal graph of rows most tests need.
type Fixture struct {
	Entity      *models.Entity
	Responsible *models.User
	Supervisor  *models.User
}

// Seed creates an entity, a preparer and a supervisor.
func Seed(t testing.TB, store *database.Store) Fixture {
	t.Helper()
	ctx := testContext()

	entity := &models.Entity{Name: "Acme Energy", TaxID: "900123456"}
	require.NoError(t, store.CreateEntity(ctx, entity))

	responsible := &models.User{Username: "ana", FullName: "Ana Preparer", Password: "x", Role: models.RolePreparer, Email: "ana@example.com"}
	require.NoError(t, store.CreateUser(ctx, responsible))

	supervisor := &models.User{Username: "sam", FullName: "Sam Supervisor", Password: "x", Role: models.RoleSupervisor, Email: "sam@example.com"}
	require.NoError(t, store.CreateUser(ctx, supervisor))

	return Fixture{Entity: entity, Responsible: responsible, Supervisor: supervisor}
}

// Definition builds an unsaved definition owned by the fixture.
func (f Fixture) Definition(code string, freq models.Frequency) *models.ReportDefinition {
	return &models.ReportDefinition{
		Code:          code,
		Name:          "Report " + code,
		EntityID:      f.Entity.ID,
		Frequency:     freq,
		ResponsibleID: f.Responsible.ID,
		SupervisorID:  f.Supervisor.ID,
		IsActive:      true,
	}
}

func testContext() context.Context {
	return context.Background()
}
