package rag

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flatplanetpl/poc-digital-twin/internal/models"
	"github.com/flatplanetpl/poc-digital-twin/internal/storage"
)

type forgetFixture struct {
	calls    *calls
	index    *fakeIndex
	history  *fakeHistory
	registry *fakeRegistry
	audit    *fakeAuditor
	svc      *ForgetService
}

func newForgetFixture(opts ...ForgetOption) *forgetFixture {
	c := &calls{}
	f := &forgetFixture{
		calls:    c,
		index:    &fakeIndex{calls: c},
		history:  &fakeHistory{calls: c},
		registry: &fakeRegistry{calls: c, byPath: map[string]*models.TrackedDocument{}},
		audit:    &fakeAuditor{calls: c},
	}
	f.svc = NewForgetService(f.index, f.history, f.registry, f.audit, append([]ForgetOption{WithForgetClock(clock)}, opts...)...)
	return f
}

func TestForgetDocument(t *testing.T) {
	f := newForgetFixture()
	f.index.deleted = 4
	f.history.purged = 2
	f.registry.marked = true

	res := f.svc.ForgetDocument(context.Background(), "doc-1", "")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "doc-1", res.DocumentID)
	assert.Equal(t, 4, res.VectorsDeleted)
	assert.Equal(t, 2, res.ChatReferencesRemoved)
	assert.True(t, res.RegistryUpdated)
	assert.Equal(t, int64(1), res.AuditID)
	assert.Equal(t, []string{
		"index.DeleteDocument",
		"history.PurgeByDocument",
		"registry.MarkDeleted",
		"registry.DeleteChunkDetails",
		"audit.LogDelete",
	}, f.calls.list())

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, ReasonUserRequest, f.audit.entries[0].Details["reason"])
	assert.Equal(t, 4, f.audit.entries[0].Details["chunks_deleted"])
}

func TestForgetDocument_UnknownIDSucceeds(t *testing.T) {
	f := newForgetFixture()
	res := f.svc.ForgetDocument(context.Background(), "missing", "user_request")
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.VectorsDeleted)
	assert.Equal(t, 0, res.ChatReferencesRemoved)
	assert.False(t, res.RegistryUpdated)
	assert.Empty(t, res.Error)
}

func TestForgetDocument_PartialFailure(t *testing.T) {
	f := newForgetFixture()
	f.index.deleted = 3
	f.history.err = errors.New("database is locked")

	res := f.svc.ForgetDocument(context.Background(), "doc-1", "user_request")
	assert.False(t, res.Success)
	assert.Equal(t, 3, res.VectorsDeleted, "completed steps are reported")
	assert.Contains(t, res.Error, "history failed")
	assert.Contains(t, res.Error, "database is locked")
	assert.Equal(t, []string{"index.DeleteDocument", "history.PurgeByDocument"}, f.calls.list())
}

func TestForgetDocument_AuditFailure(t *testing.T) {
	f := newForgetFixture()
	f.index.deleted = 1
	f.audit.err = errors.New("disk full")

	res := f.svc.ForgetDocument(context.Background(), "doc-1", "user_request")
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.VectorsDeleted)
	assert.Contains(t, res.Error, "audit failed")
}

func TestForget_RequiresTarget(t *testing.T) {
	f := newForgetFixture()
	ctx := context.Background()
	for _, res := range []*models.ForgetResult{
		f.svc.ForgetDocument(ctx, "", ""),
		f.svc.ForgetByFilePath(ctx, " ", ""),
		f.svc.ForgetSender(ctx, "", ""),
		f.svc.ForgetBySourceType(ctx, "", ""),
	} {
		assert.False(t, res.Success)
		assert.NotEmpty(t, res.Error)
	}
	assert.Empty(t, f.calls.list())
}

func TestForget_RejectsInvalidReasonBeforeDeleting(t *testing.T) {
	ctx := context.Background()
	long := strings.Repeat("x", 600)
	f := newForgetFixture()
	f.registry.byPath["/data/trip.eml"] = &models.TrackedDocument{ID: "doc-9", FilePath: "/data/trip.eml"}
	for _, reason := range []string{long, "line one\nline two"} {
		for _, res := range []*models.ForgetResult{
			f.svc.ForgetDocument(ctx, "doc-1", reason),
			f.svc.ForgetByFilePath(ctx, "/data/trip.eml", reason),
			f.svc.ForgetSender(ctx, "Anna", reason),
			f.svc.ForgetBySourceType(ctx, "email", reason),
		} {
			assert.False(t, res.Success)
			assert.Contains(t, res.Error, ErrInvalidReason.Error())
			assert.NotContains(t, res.Error, "line one", "the reason itself is not echoed")
		}
	}
	assert.Empty(t, f.calls.list(), "no step runs for an invalid reason")

	assert.NoError(t, ValidateReason(""))
	assert.NoError(t, ValidateReason("gdpr request"))
	assert.NoError(t, ValidateReason(strings.Repeat("ż", 500)))
	assert.ErrorIs(t, ValidateReason(strings.Repeat("ż", 501)), ErrInvalidReason)
}

// TestForget_LongReasonWithRealAuditor runs a forget with a reason the
// auditor would refuse against the real audit store.
func TestForget_LongReasonWithRealAuditor(t *testing.T) {
	ctx := context.Background()
	stores, err := storage.OpenAll(filepath.Join(t.TempDir(), "twin.db"))
	require.NoError(t, err)
	defer stores.Close()
	c := &calls{}
	index := &fakeIndex{calls: c, deleted: 4}
	svc := NewForgetService(index, &fakeHistory{calls: c}, &fakeRegistry{calls: c, byPath: map[string]*models.TrackedDocument{}}, stores.Audit)

	res := svc.ForgetDocument(ctx, "doc-1", strings.Repeat("x", 600))
	assert.False(t, res.Success)
	assert.Zero(t, res.VectorsDeleted)
	assert.Empty(t, c.list())

	res = svc.ForgetDocument(ctx, "doc-1", "gdpr")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 4, res.VectorsDeleted)
	assert.NotZero(t, res.AuditID)
}

func TestForgetByFilePath(t *testing.T) {
	t.Run("registered", func(t *testing.T) {
		f := newForgetFixture()
		f.registry.byPath["/data/trip.eml"] = &models.TrackedDocument{ID: "doc-9", FilePath: "/data/trip.eml"}
		f.index.deleted = 2

		res := f.svc.ForgetByFilePath(context.Background(), "/data/trip.eml", ReasonFileRemoved)
		require.True(t, res.Success, res.Error)
		assert.Equal(t, "doc-9", res.DocumentID)
		assert.Equal(t, "/data/trip.eml", res.EntityValue)
		assert.Equal(t, "doc-9", f.index.gotArg)
		assert.Equal(t, ReasonFileRemoved, f.audit.entries[0].Details["reason"])
	})

	t.Run("unregistered", func(t *testing.T) {
		f := newForgetFixture()
		f.index.deleted = 1

		res := f.svc.ForgetByFilePath(context.Background(), "/data/orphan.txt", ReasonFileRemoved)
		require.True(t, res.Success, res.Error)
		assert.Equal(t, 1, res.VectorsDeleted)
		assert.Equal(t, []string{"registry.GetByFilePath", "index.DeleteByFilePath", "audit.Log"}, f.calls.list())
		assert.Equal(t, "/data/orphan.txt", f.index.gotArg)
		require.Len(t, f.audit.entries, 1)
		assert.Equal(t, "orphan.txt", f.audit.entries[0].Details["file_name"])
		assert.Equal(t, storage.OpDelete, f.audit.entries[0].Operation)
	})

	t.Run("registry error", func(t *testing.T) {
		f := newForgetFixture()
		f.registry.pathErr = errors.New("no such table")
		res := f.svc.ForgetByFilePath(context.Background(), "/data/x.txt", "")
		assert.False(t, res.Success)
		assert.Equal(t, []string{"registry.GetByFilePath"}, f.calls.list())
	})
}

func TestForgetSender(t *testing.T) {
	f := newForgetFixture()
	f.index.deleted = 12
	f.history.purged = 3

	res := f.svc.ForgetSender(context.Background(), "Anna Nowak", "")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "sender", res.EntityType)
	assert.Equal(t, "Anna Nowak", res.EntityValue)
	assert.Equal(t, 12, res.VectorsDeleted)
	assert.Equal(t, 3, res.ChatReferencesRemoved)
	assert.Equal(t, "sender", f.history.purgeKey)
	assert.Equal(t, "Anna Nowak", f.history.purgeValue)
	assert.Equal(t, []string{"index.DeleteBySender", "history.PurgeByEntity", "registry.DeleteChunkDetailsByIDs", "audit.Log"}, f.calls.list())
	assert.Len(t, f.registry.detailIDs, 12, "details of the removed chunks go too")
	assert.Equal(t, "Anna Nowak_0", f.registry.detailIDs[0])
	assert.True(t, res.RegistryUpdated)

	e := f.audit.entries[0]
	assert.Equal(t, storage.EntitySender, e.EntityType)
	assert.Equal(t, "Anna Nowak", e.EntityID)
	assert.Equal(t, 12, e.Details["chunks_deleted"])
}

func TestForgetBySourceType(t *testing.T) {
	f := newForgetFixture()
	f.index.deleted = 40

	res := f.svc.ForgetBySourceType(context.Background(), "messenger", "cleanup")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, map[string]string{"source_type": "messenger"}, f.index.gotFilter)
	assert.Equal(t, "source_type", f.history.purgeKey)
	assert.Equal(t, "messenger", f.registry.cleared)
	assert.True(t, res.RegistryUpdated)
	assert.Equal(t, []string{
		"index.DeleteByFilter",
		"history.PurgeByEntity",
		"registry.ClearChunkDetails",
		"audit.Log",
	}, f.calls.list())
	assert.Equal(t, storage.EntitySourceType, f.audit.entries[0].EntityType)
	assert.Equal(t, "cleanup", f.audit.entries[0].Details["reason"])
}

func TestForget_IndexTimeout(t *testing.T) {
	f := newForgetFixture(WithForgetTimeout(10 * time.Millisecond))
	f.index.err = context.DeadlineExceeded
	res := f.svc.ForgetSender(context.Background(), "Jan", "")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "index timed out")
}

func TestDeletionReportAndListDeletable(t *testing.T) {
	f := newForgetFixture()
	ctx := context.Background()

	report, err := f.svc.DeletionReport(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, testNow, report.PeriodEnd)
	assert.Equal(t, testNow.AddDate(0, 0, -7), report.PeriodStart)

	_, err = f.svc.DeletionReport(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, testNow.AddDate(0, 0, -30), f.audit.start)

	docs, err := f.svc.ListDeletable(ctx, "email", 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, models.StatusActive, f.registry.listStatus)
	assert.Equal(t, "email", f.registry.listSource)
	assert.Equal(t, 100, f.registry.listLimit)
}
