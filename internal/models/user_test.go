package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	admin := &User{Role: RoleAdmin}
	supervisor := &User{Role: RoleSupervisor}
	preparer := &User{Role: RolePreparer}
	viewer := &User{Role: RoleViewer}

	assert.True(t, admin.HasPermission(PermManageUsers))
	assert.True(t, supervisor.HasPermission(PermApproveReports))
	assert.False(t, supervisor.HasPermission(PermSystemConfig))
	assert.True(t, preparer.HasPermission(PermSubmitReports))
	assert.False(t, preparer.HasPermission(PermApproveReports))
	assert.False(t, viewer.HasPermission(PermSubmitReports))
	assert.True(t, viewer.HasPermission(PermViewAlerts))
	assert.False(t, (&User{Role: "auditor"}).HasPermission(PermViewReports))
}

func TestCheckPassword(t *testing.T) {
	u := &User{}
	assert.NoError(t, u.SetPassword("s3cret"))
	assert.True(t, u.CheckPassword("s3cret"))
	assert.False(t, u.CheckPassword("other"))
}
