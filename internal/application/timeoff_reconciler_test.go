package application_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/workforce-calendar/internal/application"
	"github.com/example/workforce-calendar/internal/persistence"
	"github.com/example/workforce-calendar/internal/testfixtures"
)

func decide(t *testing.T, h *testfixtures.Harness, request persistence.TimeOffRequest, to persistence.TimeOffStatus) {
	t.Helper()
	from := request.Status
	request.Status = to
	require.NoError(t, h.Repos.TimeOff.UpdateTimeOffDecision(context.Background(), request, from))
}

func TestTimeOffReconciler_ProjectsOntoBothCalendars(t *testing.T) {
	ctx := context.Background()

	for _, h := range testfixtures.Harnesses(t) {
		t.Run(h.Name, func(t *testing.T) {
			w := testfixtures.NewWorkforce()
			h.SeedWorkforce(t, w)
			request := testfixtures.NewTimeOffRequest(w.Business.ID, w.AlicePosition.ID)
			h.SeedTimeOff(t, request)
			engine := testfixtures.NewServiceFactory().NewEngine(h.Repos)

			result, err := engine.TimeOffReconciler.SyncTimeOffRequest(ctx, request.ID)
			require.NoError(t, err)
			assert.False(t, result.Skipped)
			require.NotEmpty(t, result.ScheduleEventID)
			require.NotEmpty(t, result.PersonalEventID)

			settings, err := h.Repos.Settings.GetBusinessSettings(ctx, w.Business.ID)
			require.NoError(t, err)
			scheduleEvent, err := h.Repos.Events.GetEvent(ctx, result.ScheduleEventID)
			require.NoError(t, err)
			assert.Equal(t, *settings.ScheduleCalendarID, scheduleEvent.CalendarID)
			assert.Equal(t, "Alice Smith – PTO", scheduleEvent.Title)
			assert.True(t, scheduleEvent.AllDay)
			assert.Equal(t, persistence.EventStatusTentative, scheduleEvent.Status)
			assert.Equal(t, "America/New_York", scheduleEvent.Timezone)
			assert.True(t, scheduleEvent.StartAt.Equal(testfixtures.Date(2024, time.March, 1)), "start %s", scheduleEvent.StartAt)
			assert.True(t, scheduleEvent.EndAt.Equal(testfixtures.Date(2024, time.March, 4)), "end %s", scheduleEvent.EndAt)
			assert.Contains(t, scheduleEvent.Description, "Status: Pending")
			assert.Contains(t, scheduleEvent.Description, "(3 days)")
			require.Len(t, scheduleEvent.Attendees, 1)
			assert.Equal(t, persistence.AttendeeNeedsAction, scheduleEvent.Attendees[0].Response)

			personalCalendar, err := h.Repos.Calendars.FindPrimaryPersonalCalendar(ctx, w.Alice.ID)
			require.NoError(t, err)
			personalEvent, err := h.Repos.Events.GetEvent(ctx, result.PersonalEventID)
			require.NoError(t, err)
			assert.Equal(t, personalCalendar.ID, personalEvent.CalendarID)
			require.Len(t, personalEvent.Attendees, 1)
			assert.Equal(t, persistence.AttendeeAccepted, personalEvent.Attendees[0].Response)

			member, err := h.Repos.Calendars.GetMember(ctx, *settings.ScheduleCalendarID, w.Alice.ID)
			require.NoError(t, err)
			assert.Equal(t, persistence.CalendarRoleReader, member.Role)

			stored, err := h.Repos.TimeOff.GetTimeOffRequest(ctx, request.ID)
			require.NoError(t, err)
			require.NotNil(t, stored.ScheduleEventID)
			require.NotNil(t, stored.PersonalEventID)
			assert.Equal(t, result.ScheduleEventID, *stored.ScheduleEventID)
			assert.Equal(t, result.PersonalEventID, *stored.PersonalEventID)
		})
	}
}

func TestTimeOffReconciler_IsIdempotent(t *testing.T) {
	ctx := context.Background()

	for _, h := range testfixtures.Harnesses(t) {
		t.Run(h.Name, func(t *testing.T) {
			w := testfixtures.NewWorkforce()
			h.SeedWorkforce(t, w)
			request := testfixtures.NewTimeOffRequest(w.Business.ID, w.AlicePosition.ID)
			h.SeedTimeOff(t, request)
			engine := testfixtures.NewServiceFactory().NewEngine(h.Repos)

			first, err := engine.TimeOffReconciler.SyncTimeOffRequest(ctx, request.ID)
			require.NoError(t, err)
			second, err := engine.TimeOffReconciler.SyncTimeOffRequest(ctx, request.ID)
			require.NoError(t, err)

			assert.Equal(t, first.ScheduleEventID, second.ScheduleEventID)
			assert.Equal(t, first.PersonalEventID, second.PersonalEventID)

			if h.Memory != nil {
				settings, err := h.Repos.Settings.GetBusinessSettings(ctx, w.Business.ID)
				require.NoError(t, err)
				events, err := h.Memory.ListEvents(ctx, *settings.ScheduleCalendarID)
				require.NoError(t, err)
				assert.Len(t, events, 1)
			}
		})
	}
}

func TestTimeOffReconciler_StatusMapping(t *testing.T) {
	tests := []struct {
		to             persistence.TimeOffStatus
		wantStatus     persistence.EventStatus
		wantSchedule   persistence.AttendeeResponse
		wantPersonal   persistence.AttendeeResponse
		wantStatusLine string
	}{
		{
			to:             persistence.TimeOffApproved,
			wantStatus:     persistence.EventStatusConfirmed,
			wantSchedule:   persistence.AttendeeNeedsAction,
			wantPersonal:   persistence.AttendeeAccepted,
			wantStatusLine: "Status: Approved",
		},
		{
			to:             persistence.TimeOffDenied,
			wantStatus:     persistence.EventStatusCanceled,
			wantSchedule:   persistence.AttendeeDeclined,
			wantPersonal:   persistence.AttendeeDeclined,
			wantStatusLine: "Status: Denied",
		},
		{
			to:             persistence.TimeOffCanceled,
			wantStatus:     persistence.EventStatusCanceled,
			wantSchedule:   persistence.AttendeeDeclined,
			wantPersonal:   persistence.AttendeeDeclined,
			wantStatusLine: "Status: Canceled",
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.to), func(t *testing.T) {
			ctx := context.Background()
			h := testfixtures.NewMemoryHarness(t)
			w := testfixtures.NewWorkforce()
			h.SeedWorkforce(t, w)
			request := testfixtures.NewTimeOffRequest(w.Business.ID, w.AlicePosition.ID)
			h.SeedTimeOff(t, request)
			engine := testfixtures.NewServiceFactory().NewEngine(h.Repos)

			pending, err := engine.TimeOffReconciler.SyncTimeOffRequest(ctx, request.ID)
			require.NoError(t, err)

			decide(t, h, request, tt.to)
			decided, err := engine.TimeOffReconciler.SyncTimeOffRequest(ctx, request.ID)
			require.NoError(t, err)
			assert.Equal(t, pending.ScheduleEventID, decided.ScheduleEventID)
			assert.Equal(t, pending.PersonalEventID, decided.PersonalEventID)

			scheduleEvent, err := h.Repos.Events.GetEvent(ctx, decided.ScheduleEventID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, scheduleEvent.Status)
			assert.Equal(t, tt.wantSchedule, scheduleEvent.Attendees[0].Response)
			assert.True(t, strings.HasPrefix(scheduleEvent.Description, tt.wantStatusLine), scheduleEvent.Description)

			personalEvent, err := h.Repos.Events.GetEvent(ctx, decided.PersonalEventID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, personalEvent.Status)
			assert.Equal(t, tt.wantPersonal, personalEvent.Attendees[0].Response)
		})
	}
}

func TestTimeOffReconciler_SingleDayRequest(t *testing.T) {
	ctx := context.Background()
	h := testfixtures.NewMemoryHarness(t)
	w := testfixtures.NewWorkforce()
	h.SeedWorkforce(t, w)
	day := testfixtures.Date(2024, time.March, 8)
	request := testfixtures.NewTimeOffRequest(w.Business.ID, w.BobPosition.ID,
		testfixtures.WithTimeOffDates(day, day),
		testfixtures.WithTimeOffType(persistence.TimeOffSick),
	)
	h.SeedTimeOff(t, request)
	engine := testfixtures.NewServiceFactory().NewEngine(h.Repos)

	result, err := engine.TimeOffReconciler.SyncTimeOffRequest(ctx, request.ID)
	require.NoError(t, err)

	event, err := h.Repos.Events.GetEvent(ctx, result.ScheduleEventID)
	require.NoError(t, err)
	assert.Equal(t, "Bob Jones – Sick Leave", event.Title)
	assert.True(t, event.EndAt.Equal(testfixtures.Date(2024, time.March, 9)))
	assert.Contains(t, event.Description, "(1 day)")
}

func TestTimeOffReconciler_RecreatesDeletedEvent(t *testing.T) {
	ctx := context.Background()
	h := testfixtures.NewMemoryHarness(t)
	w := testfixtures.NewWorkforce()
	h.SeedWorkforce(t, w)
	request := testfixtures.NewTimeOffRequest(w.Business.ID, w.AlicePosition.ID)
	h.SeedTimeOff(t, request)
	engine := testfixtures.NewServiceFactory().NewEngine(h.Repos)

	first, err := engine.TimeOffReconciler.SyncTimeOffRequest(ctx, request.ID)
	require.NoError(t, err)
	require.NoError(t, h.Repos.Events.DeleteEvent(ctx, first.PersonalEventID))

	second, err := engine.TimeOffReconciler.SyncTimeOffRequest(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ScheduleEventID, second.ScheduleEventID)
	assert.NotEqual(t, first.PersonalEventID, second.PersonalEventID)

	stored, err := h.Repos.TimeOff.GetTimeOffRequest(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, second.PersonalEventID, *stored.PersonalEventID)
}

func TestTimeOffReconciler_SkipsUnresolvedEmployee(t *testing.T) {
	ctx := context.Background()
	h := testfixtures.NewMemoryHarness(t)
	w := testfixtures.NewWorkforce()
	h.SeedWorkforce(t, w)
	request := testfixtures.NewTimeOffRequest(w.Business.ID, "pos-ghost")
	h.SeedTimeOff(t, request)
	engine := testfixtures.NewServiceFactory().NewEngine(h.Repos)

	result, err := engine.TimeOffReconciler.SyncTimeOffRequest(ctx, request.ID)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Empty(t, result.ScheduleEventID)

	_, err = h.Repos.Settings.GetBusinessSettings(ctx, w.Business.ID)
	assert.ErrorIs(t, err, persistence.ErrNotFound, "nothing is provisioned for a skipped request")
}

func TestTimeOffReconciler_UnknownRequest(t *testing.T) {
	h := testfixtures.NewMemoryHarness(t)
	engine := testfixtures.NewServiceFactory().NewEngine(h.Repos)

	_, err := engine.TimeOffReconciler.SyncTimeOffRequest(context.Background(), "tor-missing")
	assert.ErrorIs(t, err, application.ErrNotFound)
}

type failingLinks struct {
	persistence.TimeOffRepository
}

func (failingLinks) SetTimeOffEventLinks(context.Context, string, *string, *string, time.Time) error {
	return errors.New("write failed")
}

func TestTimeOffReconciler_SQLiteRollsBackOnLinkFailure(t *testing.T) {
	ctx := context.Background()
	h := testfixtures.NewSQLiteHarness(t)
	w := testfixtures.NewWorkforce()
	h.SeedWorkforce(t, w)
	request := testfixtures.NewTimeOffRequest(w.Business.ID, w.AlicePosition.ID)
	h.SeedTimeOff(t, request)

	repos := h.Repos
	repos.TimeOff = failingLinks{TimeOffRepository: h.Repos.TimeOff}
	ids := testfixtures.NewIDGenerator("ev")
	factory := testfixtures.NewServiceFactory()
	factory.IDGenerator = ids
	engine := factory.NewEngine(repos)

	result, err := engine.TimeOffReconciler.SyncTimeOffRequest(ctx, request.ID)
	require.EqualError(t, err, "write failed")
	assert.Empty(t, result.ScheduleEventID)

	// Calendars are provisioned outside the transaction and survive; the
	// projected events do not.
	for i := uint64(1); i <= ids.Issued(); i++ {
		_, err := h.Repos.Events.GetEvent(ctx, "ev-"+strconv.FormatUint(i, 10))
		assert.ErrorIs(t, err, persistence.ErrNotFound)
	}
	_, err = h.Repos.Settings.GetBusinessSettings(ctx, w.Business.ID)
	assert.NoError(t, err)
}

// countEvents returns how many events a calendar holds in either store.
func countEvents(t *testing.T, h *testfixtures.Harness, calendarID string) int {
	t.Helper()
	ctx := context.Background()
	if h.Memory != nil {
		events, err := h.Memory.ListEvents(ctx, calendarID)
		require.NoError(t, err)
		return len(events)
	}
	var n int
	err := h.SQLite.Pool.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE calendar_id = ?`, calendarID).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestTimeOffReconciler_ConcurrentSyncsShareEvents(t *testing.T) {
	ctx := context.Background()

	for _, h := range testfixtures.Harnesses(t) {
		t.Run(h.Name, func(t *testing.T) {
			w := testfixtures.NewWorkforce()
			h.SeedWorkforce(t, w)
			var requests []persistence.TimeOffRequest
			for i := 0; i < 4; i++ {
				start := testfixtures.Date(2024, time.April, 1+7*i)
				requests = append(requests, testfixtures.NewTimeOffRequest(w.Business.ID, w.AlicePosition.ID,
					testfixtures.WithTimeOffDates(start, start.AddDate(0, 0, 1))))
			}
			h.SeedTimeOff(t, requests...)
			engine := testfixtures.NewServiceFactory().NewEngine(h.Repos)

			const syncsPerRequest = 2
			var (
				wg      sync.WaitGroup
				results = make([][syncsPerRequest]application.TimeOffSyncResult, len(requests))
				errs    = make([][syncsPerRequest]error, len(requests))
			)
			for i, request := range requests {
				for j := 0; j < syncsPerRequest; j++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						results[i][j], errs[i][j] = engine.TimeOffReconciler.SyncTimeOffRequest(ctx, request.ID)
					}()
				}
			}
			wg.Wait()

			for i, request := range requests {
				for j := 0; j < syncsPerRequest; j++ {
					require.NoError(t, errs[i][j])
				}
				first, second := results[i][0], results[i][1]
				assert.Equal(t, first.ScheduleEventID, second.ScheduleEventID, "request %s", request.ID)
				assert.Equal(t, first.PersonalEventID, second.PersonalEventID, "request %s", request.ID)

				stored, err := h.Repos.TimeOff.GetTimeOffRequest(ctx, request.ID)
				require.NoError(t, err)
				require.NotNil(t, stored.ScheduleEventID)
				assert.Equal(t, first.ScheduleEventID, *stored.ScheduleEventID)
			}

			settings, err := h.Repos.Settings.GetBusinessSettings(ctx, w.Business.ID)
			require.NoError(t, err)
			personal, err := h.Repos.Calendars.FindPrimaryPersonalCalendar(ctx, w.Alice.ID)
			require.NoError(t, err)
			assert.Equal(t, len(requests), countEvents(t, h, *settings.ScheduleCalendarID))
			assert.Equal(t, len(requests), countEvents(t, h, personal.ID))
		})
	}
}
