package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/workforce-calendar/internal/persistence"
	"github.com/example/workforce-calendar/internal/testfixtures"
)

// Every store implementation must satisfy the same repository contract, so
// each test runs against all harnesses.

func strPtr(s string) *string { return &s }

func newCalendar(id, userID string, primary bool) persistence.Calendar {
	base := testfixtures.ReferenceTime()
	return persistence.Calendar{
		ID:          id,
		Name:        "Personal",
		ContextType: persistence.CalendarContextPersonal,
		ContextID:   userID,
		Timezone:    "UTC",
		IsPrimary:   primary,
		IsDeletable: true,
		CreatedAt:   base,
		UpdatedAt:   base,
	}
}

func TestCalendarRepositoryContract(t *testing.T) {
	ctx := context.Background()

	for _, h := range testfixtures.Harnesses(t) {
		t.Run(h.Name, func(t *testing.T) {
			w := testfixtures.NewWorkforce()
			h.SeedWorkforce(t, w)
			repo := h.Repos.Calendars

			calendar := newCalendar("cal-alice", w.Alice.ID, true)
			require.NoError(t, repo.CreateCalendar(ctx, calendar))

			fetched, err := repo.GetCalendar(ctx, calendar.ID)
			require.NoError(t, err)
			assert.Equal(t, calendar.Name, fetched.Name)
			assert.Equal(t, persistence.CalendarContextPersonal, fetched.ContextType)
			assert.True(t, fetched.IsPrimary)
			assert.True(t, fetched.CreatedAt.Equal(calendar.CreatedAt))

			primary, err := repo.FindPrimaryPersonalCalendar(ctx, w.Alice.ID)
			require.NoError(t, err)
			assert.Equal(t, calendar.ID, primary.ID)

			err = repo.CreateCalendar(ctx, newCalendar("cal-alice-2", w.Alice.ID, true))
			assert.ErrorIs(t, err, persistence.ErrDuplicate, "one primary personal calendar per user")
			require.NoError(t, repo.CreateCalendar(ctx, newCalendar("cal-alice-extra", w.Alice.ID, false)))

			_, err = repo.FindPrimaryPersonalCalendar(ctx, w.Bob.ID)
			assert.ErrorIs(t, err, persistence.ErrNotFound)

			member := persistence.CalendarMember{
				CalendarID: calendar.ID,
				UserID:     w.Alice.ID,
				Role:       persistence.CalendarRoleReader,
				CreatedAt:  calendar.CreatedAt,
				UpdatedAt:  calendar.UpdatedAt,
			}
			require.NoError(t, repo.CreateMember(ctx, member))
			assert.ErrorIs(t, repo.CreateMember(ctx, member), persistence.ErrDuplicate)

			require.NoError(t, repo.UpdateMemberRole(ctx, calendar.ID, w.Alice.ID, persistence.CalendarRoleOwner, calendar.UpdatedAt.Add(time.Minute)))
			stored, err := repo.GetMember(ctx, calendar.ID, w.Alice.ID)
			require.NoError(t, err)
			assert.Equal(t, persistence.CalendarRoleOwner, stored.Role)

			assert.ErrorIs(t, repo.UpdateMemberRole(ctx, calendar.ID, w.Bob.ID, persistence.CalendarRoleOwner, time.Now()), persistence.ErrNotFound)
			assert.ErrorIs(t, repo.CreateMember(ctx, persistence.CalendarMember{CalendarID: "cal-ghost", UserID: w.Bob.ID, Role: persistence.CalendarRoleReader}),
				persistence.ErrForeignKeyViolation)

			require.NoError(t, repo.DeleteCalendar(ctx, calendar.ID))
			_, err = repo.GetMember(ctx, calendar.ID, w.Alice.ID)
			assert.ErrorIs(t, err, persistence.ErrNotFound, "members go with their calendar")
			assert.ErrorIs(t, repo.DeleteCalendar(ctx, calendar.ID), persistence.ErrNotFound)
		})
	}
}

func TestEventRepositoryContract(t *testing.T) {
	ctx := context.Background()

	for _, h := range testfixtures.Harnesses(t) {
		t.Run(h.Name, func(t *testing.T) {
			w := testfixtures.NewWorkforce()
			h.SeedWorkforce(t, w)
			require.NoError(t, h.Repos.Calendars.CreateCalendar(ctx, newCalendar("cal-1", w.Alice.ID, true)))
			repo := h.Repos.Events

			start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
			event := persistence.Event{
				ID:          "ev-1",
				CalendarID:  "cal-1",
				Title:       "Alice Smith – PTO",
				Description: "Status: Pending",
				StartAt:     start,
				EndAt:       start.AddDate(0, 0, 3),
				AllDay:      true,
				Timezone:    "UTC",
				Status:      persistence.EventStatusTentative,
				Attendees: []persistence.EventAttendee{
					{ID: "att-1", UserID: strPtr(w.Alice.ID), Email: strPtr(w.Alice.Email), Response: persistence.AttendeeNeedsAction},
				},
				CreatedAt: testfixtures.ReferenceTime(),
				UpdatedAt: testfixtures.ReferenceTime(),
			}
			require.NoError(t, repo.CreateEvent(ctx, event))
			assert.ErrorIs(t, repo.CreateEvent(ctx, event), persistence.ErrDuplicate)

			orphan := event
			orphan.ID = "ev-orphan"
			orphan.CalendarID = "cal-ghost"
			assert.ErrorIs(t, repo.CreateEvent(ctx, orphan), persistence.ErrForeignKeyViolation)

			fetched, err := repo.GetEvent(ctx, event.ID)
			require.NoError(t, err)
			assert.Equal(t, event.Title, fetched.Title)
			assert.True(t, fetched.AllDay)
			assert.True(t, fetched.StartAt.Equal(event.StartAt))
			require.Len(t, fetched.Attendees, 1)
			assert.Equal(t, w.Alice.ID, *fetched.Attendees[0].UserID)

			event.Status = persistence.EventStatusConfirmed
			event.Description = "Status: Approved"
			event.Attendees = []persistence.EventAttendee{
				{ID: "att-2", UserID: strPtr(w.Bob.ID), Response: persistence.AttendeeAccepted},
			}
			require.NoError(t, repo.UpdateEvent(ctx, event))

			fetched, err = repo.GetEvent(ctx, event.ID)
			require.NoError(t, err)
			assert.Equal(t, persistence.EventStatusConfirmed, fetched.Status)
			require.Len(t, fetched.Attendees, 1, "attendees are replaced as a set")
			assert.Equal(t, w.Bob.ID, *fetched.Attendees[0].UserID)
			assert.Nil(t, fetched.Attendees[0].Email)
			assert.Equal(t, persistence.AttendeeAccepted, fetched.Attendees[0].Response)

			missing := event
			missing.ID = "ev-ghost"
			assert.ErrorIs(t, repo.UpdateEvent(ctx, missing), persistence.ErrNotFound)

			require.NoError(t, repo.DeleteEvent(ctx, event.ID))
			assert.ErrorIs(t, repo.DeleteEvent(ctx, event.ID), persistence.ErrNotFound)
			_, err = repo.GetEvent(ctx, event.ID)
			assert.ErrorIs(t, err, persistence.ErrNotFound)
		})
	}
}

func TestSettingsRepositoryContract(t *testing.T) {
	ctx := context.Background()

	for _, h := range testfixtures.Harnesses(t) {
		t.Run(h.Name, func(t *testing.T) {
			w := testfixtures.NewWorkforce()
			h.SeedWorkforce(t, w)
			repo := h.Repos.Settings
			base := testfixtures.ReferenceTime()

			_, err := repo.GetBusinessSettings(ctx, w.Business.ID)
			assert.ErrorIs(t, err, persistence.ErrNotFound)

			settings := persistence.BusinessSettings{BusinessID: w.Business.ID, CreatedAt: base, UpdatedAt: base}
			require.NoError(t, repo.CreateBusinessSettings(ctx, settings))
			assert.ErrorIs(t, repo.CreateBusinessSettings(ctx, settings), persistence.ErrDuplicate)

			require.NoError(t, repo.SwapScheduleCalendar(ctx, w.Business.ID, nil, "cal-a", base))
			assert.ErrorIs(t, repo.SwapScheduleCalendar(ctx, w.Business.ID, nil, "cal-b", base), persistence.ErrConflict,
				"a concurrent writer already set the calendar")
			assert.ErrorIs(t, repo.SwapScheduleCalendar(ctx, w.Business.ID, strPtr("cal-x"), "cal-b", base), persistence.ErrConflict)
			require.NoError(t, repo.SwapScheduleCalendar(ctx, w.Business.ID, strPtr("cal-a"), "cal-b", base.Add(time.Hour)))

			stored, err := repo.GetBusinessSettings(ctx, w.Business.ID)
			require.NoError(t, err)
			require.NotNil(t, stored.ScheduleCalendarID)
			assert.Equal(t, "cal-b", *stored.ScheduleCalendarID)

			assert.ErrorIs(t, repo.SwapScheduleCalendar(ctx, "biz-ghost", nil, "cal-a", base), persistence.ErrNotFound)
		})
	}
}

func TestDirectoryRepositoryContract(t *testing.T) {
	ctx := context.Background()

	for _, h := range testfixtures.Harnesses(t) {
		t.Run(h.Name, func(t *testing.T) {
			w := testfixtures.NewWorkforce()
			h.SeedWorkforce(t, w)
			repo := h.Repos.Directory

			user, err := repo.GetUser(ctx, w.Alice.ID)
			require.NoError(t, err)
			assert.Equal(t, "Alice's Workspace", user.DefaultWorkspaceName)

			business, err := repo.GetBusiness(ctx, w.Business.ID)
			require.NoError(t, err)
			assert.Equal(t, "America/New_York", business.Timezone)

			position, err := repo.GetEmployeePosition(ctx, w.BobPosition.ID)
			require.NoError(t, err)
			assert.Equal(t, "Line Cook", position.PositionTitle)
			assert.True(t, position.Active)

			members, err := repo.ListActiveBusinessMembers(ctx, w.Business.ID)
			require.NoError(t, err)
			assert.Len(t, members, 4)

			inactive := w.Members[3]
			inactive.Active = false
			require.NoError(t, h.Writer.SaveBusinessMember(ctx, inactive), "save replaces an existing member")
			members, err = repo.ListActiveBusinessMembers(ctx, w.Business.ID)
			require.NoError(t, err)
			assert.Len(t, members, 3)

			member, err := repo.GetBusinessMember(ctx, w.Business.ID, w.Bob.ID)
			require.NoError(t, err)
			assert.False(t, member.Active)

			_, err = repo.GetUser(ctx, "user-ghost")
			assert.ErrorIs(t, err, persistence.ErrNotFound)
			_, err = repo.GetBusinessMember(ctx, w.Business.ID, "user-ghost")
			assert.ErrorIs(t, err, persistence.ErrNotFound)
			_, err = repo.GetEmployeePosition(ctx, "pos-ghost")
			assert.ErrorIs(t, err, persistence.ErrNotFound)
		})
	}
}

func TestTimeOffRepositoryContract(t *testing.T) {
	ctx := context.Background()

	for _, h := range testfixtures.Harnesses(t) {
		t.Run(h.Name, func(t *testing.T) {
			w := testfixtures.NewWorkforce()
			h.SeedWorkforce(t, w)
			repo := h.Repos.TimeOff

			march := testfixtures.NewTimeOffRequest(w.Business.ID, w.AlicePosition.ID, testfixtures.WithTimeOffID("tor-march"))
			april := testfixtures.NewTimeOffRequest(w.Business.ID, w.AlicePosition.ID,
				testfixtures.WithTimeOffID("tor-april"),
				testfixtures.WithTimeOffDates(testfixtures.Date(2024, time.April, 8), testfixtures.Date(2024, time.April, 9)))
			denied := testfixtures.NewTimeOffRequest(w.Business.ID, w.AlicePosition.ID,
				testfixtures.WithTimeOffID("tor-denied"),
				testfixtures.WithTimeOffStatus(persistence.TimeOffDenied))
			bobs := testfixtures.NewTimeOffRequest(w.Business.ID, w.BobPosition.ID, testfixtures.WithTimeOffID("tor-bob"))
			h.SeedTimeOff(t, march, april, denied, bobs)
			assert.ErrorIs(t, repo.CreateTimeOffRequest(ctx, march), persistence.ErrDuplicate)

			start, end := testfixtures.Date(2024, time.March, 2), testfixtures.Date(2024, time.March, 31)
			found, err := repo.ListTimeOffRequests(ctx, persistence.TimeOffFilter{
				EmployeePositionID: w.AlicePosition.ID,
				Statuses:           []persistence.TimeOffStatus{persistence.TimeOffPending, persistence.TimeOffApproved},
				StartsOnOrBefore:   &end,
				EndsOnOrAfter:      &start,
			})
			require.NoError(t, err)
			require.Len(t, found, 1)
			assert.Equal(t, "tor-march", found[0].ID)

			all, err := repo.ListTimeOffRequests(ctx, persistence.TimeOffFilter{EmployeePositionID: w.AlicePosition.ID})
			require.NoError(t, err)
			assert.Len(t, all, 3)

			decidedAt := testfixtures.ReferenceTime().Add(time.Hour)
			march.Status = persistence.TimeOffApproved
			march.DecidedByID = strPtr(w.Manager.ID)
			march.DecidedAt = &decidedAt
			march.ManagerNote = "enjoy"
			march.UpdatedAt = decidedAt
			require.NoError(t, repo.UpdateTimeOffDecision(ctx, march, persistence.TimeOffPending))
			assert.ErrorIs(t, repo.UpdateTimeOffDecision(ctx, march, persistence.TimeOffPending), persistence.ErrConflict)

			require.NoError(t, repo.SetTimeOffEventLinks(ctx, march.ID, strPtr("ev-1"), nil, decidedAt))
			stored, err := repo.GetTimeOffRequest(ctx, march.ID)
			require.NoError(t, err)
			assert.Equal(t, persistence.TimeOffApproved, stored.Status)
			assert.Equal(t, "enjoy", stored.ManagerNote)
			require.NotNil(t, stored.DecidedAt)
			assert.True(t, stored.DecidedAt.Equal(decidedAt))
			require.NotNil(t, stored.ScheduleEventID)
			assert.Equal(t, "ev-1", *stored.ScheduleEventID)
			assert.Nil(t, stored.PersonalEventID)
			assert.True(t, stored.StartDate.Equal(testfixtures.Date(2024, time.March, 1)))

			_, err = repo.GetTimeOffRequest(ctx, "tor-ghost")
			assert.ErrorIs(t, err, persistence.ErrNotFound)
			assert.ErrorIs(t, repo.SetTimeOffEventLinks(ctx, "tor-ghost", nil, nil, decidedAt), persistence.ErrNotFound)
		})
	}
}

func TestScheduleRepositoryContract(t *testing.T) {
	ctx := context.Background()

	for _, h := range testfixtures.Harnesses(t) {
		t.Run(h.Name, func(t *testing.T) {
			w := testfixtures.NewWorkforce()
			h.SeedWorkforce(t, w)
			repo := h.Repos.Schedules

			schedule := testfixtures.NewSchedule(w.Business.ID)
			first := testfixtures.NewShift(schedule,
				testfixtures.AssignedTo(w.AlicePosition.ID),
				testfixtures.WithShiftMetadata(map[string]any{"color": "blue"}))
			second := testfixtures.NewShift(schedule, testfixtures.WithShiftTimes(
				schedule.StartDate.Add(14*time.Hour), schedule.StartDate.Add(22*time.Hour)))
			h.SeedSchedule(t, schedule, second, first)

			shifts, err := repo.ListShifts(ctx, schedule.ID)
			require.NoError(t, err)
			require.Len(t, shifts, 2)
			assert.Equal(t, first.ID, shifts[0].ID, "shifts are ordered by start time")

			publishedAt := testfixtures.ReferenceTime().Add(time.Hour)
			require.NoError(t, repo.UpdateScheduleStatus(ctx, schedule.ID, persistence.ScheduleDraft, persistence.SchedulePublished, &publishedAt, publishedAt))
			assert.ErrorIs(t, repo.UpdateScheduleStatus(ctx, schedule.ID, persistence.ScheduleDraft, persistence.SchedulePublished, &publishedAt, publishedAt),
				persistence.ErrConflict)
			stored, err := repo.GetSchedule(ctx, schedule.ID)
			require.NoError(t, err)
			assert.Equal(t, persistence.SchedulePublished, stored.Status)
			require.NotNil(t, stored.PublishedAt)

			links := map[string]any{"scheduleEventId": "ev-1", "personalEventId": nil}
			require.NoError(t, repo.MergeShiftMetadata(ctx, first.ID, "calendarEvents", links, publishedAt))

			first.Location = "Harbor Kiosk"
			first.EmployeePositionID = nil
			first.Metadata = map[string]any{}
			require.NoError(t, repo.UpdateShift(ctx, first))

			shift, err := repo.GetShift(ctx, first.ID)
			require.NoError(t, err)
			assert.Equal(t, "Harbor Kiosk", shift.Location)
			assert.Nil(t, shift.EmployeePositionID)
			assert.Equal(t, "blue", shift.Metadata["color"], "foreign keys survive merges and updates")
			assert.Equal(t, map[string]any{"scheduleEventId": "ev-1", "personalEventId": nil}, shift.Metadata["calendarEvents"])

			assert.ErrorIs(t, repo.MergeShiftMetadata(ctx, "shift-ghost", "calendarEvents", links, publishedAt), persistence.ErrNotFound)
			_, err = repo.GetShift(ctx, "shift-ghost")
			assert.ErrorIs(t, err, persistence.ErrNotFound)
			_, err = repo.GetSchedule(ctx, "sched-ghost")
			assert.ErrorIs(t, err, persistence.ErrNotFound)
		})
	}
}

func TestTransactorPropagatesErrors(t *testing.T) {
	ctx := context.Background()

	for _, h := range testfixtures.Harnesses(t) {
		t.Run(h.Name, func(t *testing.T) {
			calls := 0
			err := h.Repos.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
				calls++
				return h.Repos.Transactor.WithinTransaction(ctx, func(context.Context) error {
					return persistence.ErrConflict
				})
			})
			assert.ErrorIs(t, err, persistence.ErrConflict)
			assert.Equal(t, 1, calls, "non-busy errors are not retried")
		})
	}
}
