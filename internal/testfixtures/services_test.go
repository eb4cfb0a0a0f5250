package testfixtures

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceFactoryNewEngine(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHarness(t)
	w := NewWorkforce()
	h.SeedWorkforce(t, w)

	factory := NewServiceFactory()
	engine := factory.NewEngine(h.Repos)

	calendarID, err := engine.Provisioner.EnsureBusinessScheduleCalendar(ctx, w.Business.ID)
	require.NoError(t, err)
	assert.Equal(t, "id-1", calendarID)

	calendar, err := h.Repos.Calendars.GetCalendar(ctx, calendarID)
	require.NoError(t, err)
	assert.False(t, calendar.CreatedAt.Before(ReferenceTime()))
}

func TestWorkforceSeedIntoSQLite(t *testing.T) {
	ctx := context.Background()
	h := NewSQLiteHarness(t)
	w := NewWorkforce(WithMemberRole("user-alice", "MANAGER", true))
	h.SeedWorkforce(t, w)

	member, err := h.Repos.Directory.GetBusinessMember(ctx, w.Business.ID, w.Alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, "MANAGER", member.Role)
	assert.True(t, member.CanManage)

	active, err := h.Repos.Directory.ListActiveBusinessMembers(ctx, w.Business.ID)
	require.NoError(t, err)
	assert.Len(t, active, 4)
}
