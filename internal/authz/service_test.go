package authz

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fieldvolt/fieldvolt-access/internal/audit"
	"github.com/fieldvolt/fieldvolt-access/internal/catalog"
	"github.com/fieldvolt/fieldvolt-access/internal/grants"
	"github.com/fieldvolt/fieldvolt-access/internal/users"
)

type memoryGrants struct {
	byUser map[int64][]grants.UserPermission
	err    error
}

func (m *memoryGrants) ListActive(_ context.Context, userID int64) ([]grants.UserPermission, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byUser[userID], nil
}

type memoryUsers struct {
	byID map[int64]users.User
}

func (m *memoryUsers) Get(_ context.Context, id int64) (users.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return users.User{}, errors.New("users: not found")
	}
	return u, nil
}

type captureRecorder struct {
	entries []audit.Entry
	err     error
}

func (c *captureRecorder) Record(_ context.Context, e audit.Entry) error {
	c.entries = append(c.entries, audit.Normalize(e))
	return c.err
}

func newTestService(t *testing.T, grantSource GrantSource, userSource UserSource, recorder audit.Recorder) *Service {
	t.Helper()
	store := catalog.NewStore(nil, slog.Default())
	return NewService(store, grantSource, userSource, recorder, nil, slog.Default())
}

func TestRoleCheckBuiltinOwnPermissions(t *testing.T) {
	svc := newTestService(t, nil, nil, nil)
	ctx := context.Background()

	// Every builtin non-conditional permission is honoured at its own scope.
	for name, role := range catalog.BuiltinRoles() {
		for _, perm := range role.Permissions {
			if perm.Condition != nil {
				continue
			}
			granted := svc.HasActionPermission(ctx, name, perm.Resource, perm.Action, perm.Scope, nil)
			require.True(t, granted, "role %s should allow %s", name, perm.Key())
		}
	}
}

func TestRoleCheckUnknownRoleDenies(t *testing.T) {
	svc := newTestService(t, nil, nil, nil)

	granted := svc.HasActionPermission(context.Background(), "no-such-role",
		catalog.ResourceJobs, catalog.ActionView, catalog.ScopeOwn, nil)
	require.False(t, granted)
}

func TestRoleCheckScopeSatisfaction(t *testing.T) {
	svc := newTestService(t, nil, nil, nil)
	ctx := context.Background()

	// Admin holds jobs at the all scope; narrower requests are covered.
	require.True(t, svc.HasActionPermission(ctx, catalog.RoleAdmin,
		catalog.ResourceJobs, catalog.ActionView, catalog.ScopeOwn, nil))
	require.True(t, svc.HasActionPermission(ctx, catalog.RoleAdmin,
		catalog.ResourceJobs, catalog.ActionView, catalog.ScopeTeam, nil))
	require.True(t, svc.HasActionPermission(ctx, catalog.RoleAdmin,
		catalog.ResourceJobs, catalog.ActionView, catalog.ScopeAll, nil))

	// HR manager holds users at the division scope; team is covered, all is not.
	require.True(t, svc.HasActionPermission(ctx, catalog.RoleHRManager,
		catalog.ResourceUsers, catalog.ActionView, catalog.ScopeTeam, nil))
	require.False(t, svc.HasActionPermission(ctx, catalog.RoleHRManager,
		catalog.ResourceUsers, catalog.ActionView, catalog.ScopeAll, nil))

	// Office staff at team scope does not cover a division request.
	require.False(t, svc.HasActionPermission(ctx, catalog.RoleOfficeStaff,
		catalog.ResourceJobs, catalog.ActionView, catalog.ScopeDivision, nil))
}

func TestRoleCheckParentInheritance(t *testing.T) {
	svc := newTestService(t, nil, nil, nil)
	ctx := context.Background()

	// report creation comes only from the technician parent.
	require.True(t, svc.HasActionPermission(ctx, catalog.RoleNETASupervisor,
		catalog.ResourceReports, catalog.ActionCreate, catalog.ScopeOwn, nil))

	// The supervisor's own jobs/edit entry has no lock condition, so a
	// locked-job context still passes.
	bag := map[string]any{"job": map[string]any{"status": "locked"}}
	require.True(t, svc.HasActionPermission(ctx, catalog.RoleNETASupervisor,
		catalog.ResourceJobs, catalog.ActionEdit, catalog.ScopeOwn, bag))

	// The technician keeps the condition and is denied on locked jobs.
	require.False(t, svc.HasActionPermission(ctx, catalog.RoleNETATechnician,
		catalog.ResourceJobs, catalog.ActionEdit, catalog.ScopeOwn, bag))
	open := map[string]any{"job": map[string]any{"status": "open"}}
	require.True(t, svc.HasActionPermission(ctx, catalog.RoleNETATechnician,
		catalog.ResourceJobs, catalog.ActionEdit, catalog.ScopeOwn, open))
}

func TestRoleCheckConditionSkippedWithoutContext(t *testing.T) {
	svc := newTestService(t, nil, nil, nil)

	// With no context bag the conditional entry still grants.
	require.True(t, svc.HasActionPermission(context.Background(), catalog.RoleNETATechnician,
		catalog.ResourceJobs, catalog.ActionEdit, catalog.ScopeOwn, nil))
}

func TestRoleCheckParentCycleTerminates(t *testing.T) {
	recorder := &captureRecorder{}
	store := catalog.NewStore(nil, slog.Default())
	nameA, nameB := "cycle_a", "cycle_b"
	parentB := nameB
	parentA := nameA
	_, err := store.Upsert(context.Background(), nameA, catalog.RolePatch{ParentRole: &parentB}, 1)
	require.NoError(t, err)
	_, err = store.Upsert(context.Background(), nameB, catalog.RolePatch{ParentRole: &parentA}, 1)
	require.NoError(t, err)

	svc := NewService(store, nil, nil, recorder, nil, slog.Default())
	granted := svc.HasActionPermission(context.Background(), nameA,
		catalog.ResourceJobs, catalog.ActionView, catalog.ScopeOwn, nil)
	require.False(t, granted)
}

func TestCheckPermissionDirectGrantWins(t *testing.T) {
	recorder := &captureRecorder{}
	grantSource := &memoryGrants{byUser: map[int64][]grants.UserPermission{
		7: {{
			ID:       uuid.New(),
			UserID:   7,
			Resource: catalog.ResourceEquipment,
			Action:   catalog.ActionManage,
			Scope:    catalog.ScopeAll,
			IsActive: true,
		}},
	}}
	userSource := &memoryUsers{byID: map[int64]users.User{
		7: {ID: 7, Role: catalog.RoleViewer, IsActive: true},
	}}
	svc := newTestService(t, grantSource, userSource, recorder)

	decision := svc.CheckPermission(context.Background(), CheckRequest{
		UserID:   7,
		Resource: catalog.ResourceEquipment,
		Action:   catalog.ActionManage,
		Scope:    catalog.ScopeOwn,
	})
	require.True(t, decision.Granted)
	require.Equal(t, SourceDirect, decision.Source)

	require.Len(t, recorder.entries, 1)
	entry := recorder.entries[0]
	require.Equal(t, int64(7), entry.UserID)
	require.Equal(t, audit.KindAccess, entry.Kind)
	require.True(t, entry.Granted)
}

func TestCheckPermissionFallsBackToRole(t *testing.T) {
	grantSource := &memoryGrants{byUser: map[int64][]grants.UserPermission{}}
	userSource := &memoryUsers{byID: map[int64]users.User{
		3: {ID: 3, Role: catalog.RoleOfficeStaff, IsActive: true},
	}}
	svc := newTestService(t, grantSource, userSource, nil)

	decision := svc.CheckPermission(context.Background(), CheckRequest{
		UserID:   3,
		Resource: catalog.ResourceCustomers,
		Action:   catalog.ActionEdit,
		Scope:    catalog.ScopeTeam,
	})
	require.True(t, decision.Granted)
	require.Equal(t, SourceRole, decision.Source)
}

func TestCheckPermissionDeniedOutcomes(t *testing.T) {
	grantSource := &memoryGrants{byUser: map[int64][]grants.UserPermission{}}
	userSource := &memoryUsers{byID: map[int64]users.User{
		3: {ID: 3, Role: catalog.RoleViewer, IsActive: true},
		4: {ID: 4, Role: catalog.RoleAdmin, IsActive: false},
	}}
	svc := newTestService(t, grantSource, userSource, nil)
	ctx := context.Background()

	// Role does not cover the tuple.
	decision := svc.CheckPermission(ctx, CheckRequest{
		UserID: 3, Resource: catalog.ResourceJobs, Action: catalog.ActionDelete, Scope: catalog.ScopeOwn,
	})
	require.False(t, decision.Granted)
	require.Equal(t, SourceNone, decision.Source)

	// Inactive account denies regardless of role.
	decision = svc.CheckPermission(ctx, CheckRequest{
		UserID: 4, Resource: catalog.ResourceJobs, Action: catalog.ActionView, Scope: catalog.ScopeOwn,
	})
	require.False(t, decision.Granted)
	require.Equal(t, "account inactive", decision.Reason)

	// Unknown user denies.
	decision = svc.CheckPermission(ctx, CheckRequest{
		UserID: 99, Resource: catalog.ResourceJobs, Action: catalog.ActionView, Scope: catalog.ScopeOwn,
	})
	require.False(t, decision.Granted)
	require.Equal(t, "unknown user", decision.Reason)
}

func TestCheckPermissionGrantConditionFailsClosed(t *testing.T) {
	grantSource := &memoryGrants{byUser: map[int64][]grants.UserPermission{
		5: {{
			ID:        uuid.New(),
			UserID:    5,
			Resource:  catalog.ResourceReports,
			Action:    catalog.ActionExport,
			Scope:     catalog.ScopeOwn,
			Condition: json.RawMessage(`{"op":"wat"}`),
			IsActive:  true,
		}},
	}}
	userSource := &memoryUsers{byID: map[int64]users.User{
		5: {ID: 5, Role: catalog.RoleViewer, IsActive: true},
	}}
	svc := newTestService(t, grantSource, userSource, nil)

	decision := svc.CheckPermission(context.Background(), CheckRequest{
		UserID:   5,
		Resource: catalog.ResourceReports,
		Action:   catalog.ActionExport,
		Scope:    catalog.ScopeOwn,
		Context:  map[string]any{"report": map[string]any{"status": "draft"}},
	})
	require.False(t, decision.Granted)
	require.Equal(t, SourceDirect, decision.Source)
}

func TestCheckPermissionGrantConditionEvaluated(t *testing.T) {
	grantSource := &memoryGrants{byUser: map[int64][]grants.UserPermission{
		5: {{
			ID:        uuid.New(),
			UserID:    5,
			Resource:  catalog.ResourceReports,
			Action:    catalog.ActionExport,
			Scope:     catalog.ScopeOwn,
			Condition: json.RawMessage(`"report.status = \"final\""`),
			IsActive:  true,
		}},
	}}
	userSource := &memoryUsers{byID: map[int64]users.User{
		5: {ID: 5, Role: catalog.RoleViewer, IsActive: true},
	}}
	svc := newTestService(t, grantSource, userSource, nil)
	ctx := context.Background()

	decision := svc.CheckPermission(ctx, CheckRequest{
		UserID: 5, Resource: catalog.ResourceReports, Action: catalog.ActionExport,
		Scope:   catalog.ScopeOwn,
		Context: map[string]any{"report": map[string]any{"status": "final"}},
	})
	require.True(t, decision.Granted)

	decision = svc.CheckPermission(ctx, CheckRequest{
		UserID: 5, Resource: catalog.ResourceReports, Action: catalog.ActionExport,
		Scope:   catalog.ScopeOwn,
		Context: map[string]any{"report": map[string]any{"status": "draft"}},
	})
	require.False(t, decision.Granted)
}

func TestCheckPermissionGrantSourceErrorFallsBackToRole(t *testing.T) {
	grantSource := &memoryGrants{err: errors.New("grants: boom")}
	userSource := &memoryUsers{byID: map[int64]users.User{
		3: {ID: 3, Role: catalog.RoleViewer, IsActive: true},
	}}
	svc := newTestService(t, grantSource, userSource, nil)

	decision := svc.CheckPermission(context.Background(), CheckRequest{
		UserID: 3, Resource: catalog.ResourceReports, Action: catalog.ActionView, Scope: catalog.ScopeOwn,
	})
	require.True(t, decision.Granted)
	require.Equal(t, SourceRole, decision.Source)
}

func TestCheckPermissionRecorderFailureKeepsDecision(t *testing.T) {
	recorder := &captureRecorder{err: errors.New("audit: queue full")}
	userSource := &memoryUsers{byID: map[int64]users.User{
		3: {ID: 3, Role: catalog.RoleViewer, IsActive: true},
	}}
	svc := newTestService(t, &memoryGrants{}, userSource, recorder)

	decision := svc.CheckPermission(context.Background(), CheckRequest{
		UserID: 3, Resource: catalog.ResourceDocuments, Action: catalog.ActionView, Scope: catalog.ScopeOwn,
	})
	require.True(t, decision.Granted)
	require.Len(t, recorder.entries, 1)
}

func TestScopeSatisfies(t *testing.T) {
	cases := []struct {
		granted, requested catalog.Scope
		want               bool
	}{
		{catalog.ScopeAll, catalog.ScopeOwn, true},
		{catalog.ScopeAll, catalog.ScopeAll, true},
		{catalog.ScopeDivision, catalog.ScopeTeam, true},
		{catalog.ScopeDivision, catalog.ScopeDivision, true},
		{catalog.ScopeDivision, catalog.ScopeAll, false},
		{catalog.ScopeTeam, catalog.ScopeDivision, false},
		{catalog.ScopeTeam, catalog.ScopeOwn, false},
		{catalog.ScopeOwn, catalog.ScopeOwn, true},
		{catalog.ScopeOwn, "", true},
		{"", catalog.ScopeAll, true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ScopeSatisfies(tc.granted, tc.requested),
			"granted=%q requested=%q", tc.granted, tc.requested)
	}
}
