package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/workforce-calendar/internal/application"
	"github.com/example/workforce-calendar/internal/metrics"
	"github.com/example/workforce-calendar/internal/persistence"
	"github.com/example/workforce-calendar/internal/testfixtures"
)

// morningShift runs 9:00 AM to 5:30 PM New York time on March 4, 2024.
func morningShift(schedule persistence.Schedule, opts ...testfixtures.ShiftOption) persistence.ScheduleShift {
	start := time.Date(2024, time.March, 4, 14, 0, 0, 0, time.UTC)
	opts = append([]testfixtures.ShiftOption{testfixtures.WithShiftTimes(start, start.Add(8*time.Hour+30*time.Minute))}, opts...)
	return testfixtures.NewShift(schedule, opts...)
}

func shiftLinks(t *testing.T, h *testfixtures.Harness, shiftID string) map[string]any {
	t.Helper()
	shift, err := h.Repos.Schedules.GetShift(context.Background(), shiftID)
	require.NoError(t, err)
	links, ok := shift.Metadata["calendarEvents"].(map[string]any)
	require.True(t, ok, "metadata %v has no calendarEvents object", shift.Metadata)
	return links
}

func TestShiftReconciler_SyncPublishedSchedule(t *testing.T) {
	ctx := context.Background()

	for _, h := range testfixtures.Harnesses(t) {
		t.Run(h.Name, func(t *testing.T) {
			w := testfixtures.NewWorkforce()
			h.SeedWorkforce(t, w)
			schedule := testfixtures.NewSchedule(w.Business.ID, testfixtures.Published(), testfixtures.WithScheduleName("Week of Mar 4"))
			assigned := morningShift(schedule,
				testfixtures.AssignedTo(w.AlicePosition.ID),
				testfixtures.WithShiftDetails("Main St", 30, "Bring apron"),
			)
			open := morningShift(schedule)
			h.SeedSchedule(t, schedule, assigned, open)
			engine := testfixtures.NewServiceFactory().NewEngine(h.Repos)

			result, err := engine.ShiftReconciler.SyncPublishedSchedule(ctx, schedule.ID, w.Business.ID)
			require.NoError(t, err)
			assert.Empty(t, result.Failures)
			assert.Empty(t, result.Skipped)
			require.Len(t, result.Synced, 2)

			byShift := map[string]application.ShiftSyncResult{}
			for _, synced := range result.Synced {
				byShift[synced.ShiftID] = synced
			}

			alice := byShift[assigned.ID]
			require.NotEmpty(t, alice.ScheduleEventID)
			require.NotEmpty(t, alice.PersonalEventID)
			scheduleEvent, err := h.Repos.Events.GetEvent(ctx, alice.ScheduleEventID)
			require.NoError(t, err)
			assert.Equal(t, "Alice Smith - Barista - 9:00 AM - 5:30 PM", scheduleEvent.Title)
			assert.Equal(t, "America/New_York", scheduleEvent.Timezone)
			assert.Equal(t, persistence.EventStatusConfirmed, scheduleEvent.Status)
			assert.Contains(t, scheduleEvent.Description, "Schedule: Week of Mar 4")
			assert.Contains(t, scheduleEvent.Description, "Location: Main St")
			assert.Contains(t, scheduleEvent.Description, "Break: 30 min")
			require.Len(t, scheduleEvent.Attendees, 1)
			assert.Equal(t, persistence.AttendeeNeedsAction, scheduleEvent.Attendees[0].Response)

			personalCalendar, err := h.Repos.Calendars.FindPrimaryPersonalCalendar(ctx, w.Alice.ID)
			require.NoError(t, err)
			personalEvent, err := h.Repos.Events.GetEvent(ctx, alice.PersonalEventID)
			require.NoError(t, err)
			assert.Equal(t, personalCalendar.ID, personalEvent.CalendarID)
			assert.Equal(t, persistence.AttendeeAccepted, personalEvent.Attendees[0].Response)

			links := shiftLinks(t, h, assigned.ID)
			assert.Equal(t, alice.ScheduleEventID, links["scheduleEventId"])
			assert.Equal(t, alice.PersonalEventID, links["personalEventId"])

			openResult := byShift[open.ID]
			assert.Empty(t, openResult.PersonalEventID)
			openEvent, err := h.Repos.Events.GetEvent(ctx, openResult.ScheduleEventID)
			require.NoError(t, err)
			assert.Equal(t, "Open Shift - Barista - 9:00 AM - 5:30 PM", openEvent.Title)
			assert.Empty(t, openEvent.Attendees)
		})
	}
}

func TestShiftReconciler_ResyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := testfixtures.NewMemoryHarness(t)
	w := testfixtures.NewWorkforce()
	h.SeedWorkforce(t, w)
	schedule := testfixtures.NewSchedule(w.Business.ID, testfixtures.Published())
	shift := morningShift(schedule, testfixtures.AssignedTo(w.AlicePosition.ID))
	h.SeedSchedule(t, schedule, shift)
	engine := testfixtures.NewServiceFactory().NewEngine(h.Repos)

	first, err := engine.ShiftReconciler.SyncPublishedSchedule(ctx, schedule.ID, w.Business.ID)
	require.NoError(t, err)
	second, err := engine.ShiftReconciler.SyncPublishedSchedule(ctx, schedule.ID, w.Business.ID)
	require.NoError(t, err)

	require.Len(t, second.Synced, 1)
	assert.Equal(t, first.Synced[0].ScheduleEventID, second.Synced[0].ScheduleEventID)
	assert.Equal(t, first.Synced[0].PersonalEventID, second.Synced[0].PersonalEventID)
	assert.Nil(t, second.Synced[0].StaleDeletion)

	personalCalendar, err := h.Repos.Calendars.FindPrimaryPersonalCalendar(ctx, w.Alice.ID)
	require.NoError(t, err)
	events, err := h.Memory.ListEvents(ctx, personalCalendar.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestShiftReconciler_Reassignment(t *testing.T) {
	ctx := context.Background()

	for _, h := range testfixtures.Harnesses(t) {
		t.Run(h.Name, func(t *testing.T) {
			w := testfixtures.NewWorkforce()
			h.SeedWorkforce(t, w)
			schedule := testfixtures.NewSchedule(w.Business.ID, testfixtures.Published())
			shift := morningShift(schedule, testfixtures.AssignedTo(w.AlicePosition.ID))
			h.SeedSchedule(t, schedule, shift)
			engine := testfixtures.NewServiceFactory().NewEngine(h.Repos)

			before, err := engine.ShiftReconciler.SyncSingleShift(ctx, shift.ID, w.Business.ID)
			require.NoError(t, err)

			stored, err := h.Repos.Schedules.GetShift(ctx, shift.ID)
			require.NoError(t, err)
			bob := w.BobPosition.ID
			stored.EmployeePositionID = &bob
			stored.PositionTitle = ""
			require.NoError(t, h.Repos.Schedules.UpdateShift(ctx, stored))

			after, err := engine.ShiftReconciler.SyncSingleShift(ctx, shift.ID, w.Business.ID)
			require.NoError(t, err)

			assert.Equal(t, before.ScheduleEventID, after.ScheduleEventID)
			assert.NotEqual(t, before.PersonalEventID, after.PersonalEventID)
			require.NotNil(t, after.StaleDeletion)
			assert.Equal(t, application.StaleDeleted, after.StaleDeletion.Outcome)
			assert.Equal(t, before.PersonalEventID, after.StaleDeletion.EventID)

			_, err = h.Repos.Events.GetEvent(ctx, before.PersonalEventID)
			assert.ErrorIs(t, err, persistence.ErrNotFound)

			bobCalendar, err := h.Repos.Calendars.FindPrimaryPersonalCalendar(ctx, w.Bob.ID)
			require.NoError(t, err)
			personal, err := h.Repos.Events.GetEvent(ctx, after.PersonalEventID)
			require.NoError(t, err)
			assert.Equal(t, bobCalendar.ID, personal.CalendarID)

			scheduleEvent, err := h.Repos.Events.GetEvent(ctx, after.ScheduleEventID)
			require.NoError(t, err)
			assert.Equal(t, "Bob Jones - Line Cook - 9:00 AM - 5:30 PM", scheduleEvent.Title)
			require.Len(t, scheduleEvent.Attendees, 1)
			require.NotNil(t, scheduleEvent.Attendees[0].UserID)
			assert.Equal(t, w.Bob.ID, *scheduleEvent.Attendees[0].UserID)

			settings, err := h.Repos.Settings.GetBusinessSettings(ctx, w.Business.ID)
			require.NoError(t, err)
			member, err := h.Repos.Calendars.GetMember(ctx, *settings.ScheduleCalendarID, w.Bob.ID)
			require.NoError(t, err)
			assert.Equal(t, persistence.CalendarRoleReader, member.Role)

			links := shiftLinks(t, h, shift.ID)
			assert.Equal(t, after.PersonalEventID, links["personalEventId"])
		})
	}
}

func TestShiftReconciler_Unassignment(t *testing.T) {
	ctx := context.Background()

	for _, h := range testfixtures.Harnesses(t) {
		t.Run(h.Name, func(t *testing.T) {
			w := testfixtures.NewWorkforce()
			h.SeedWorkforce(t, w)
			schedule := testfixtures.NewSchedule(w.Business.ID, testfixtures.Published())
			shift := morningShift(schedule, testfixtures.AssignedTo(w.AlicePosition.ID))
			h.SeedSchedule(t, schedule, shift)
			engine := testfixtures.NewServiceFactory().NewEngine(h.Repos)

			before, err := engine.ShiftReconciler.SyncSingleShift(ctx, shift.ID, w.Business.ID)
			require.NoError(t, err)

			stored, err := h.Repos.Schedules.GetShift(ctx, shift.ID)
			require.NoError(t, err)
			stored.EmployeePositionID = nil
			require.NoError(t, h.Repos.Schedules.UpdateShift(ctx, stored))

			after, err := engine.ShiftReconciler.SyncSingleShift(ctx, shift.ID, w.Business.ID)
			require.NoError(t, err)

			assert.Equal(t, before.ScheduleEventID, after.ScheduleEventID)
			assert.Empty(t, after.PersonalEventID)
			require.NotNil(t, after.StaleDeletion)
			assert.Equal(t, application.StaleDeleted, after.StaleDeletion.Outcome)

			_, err = h.Repos.Events.GetEvent(ctx, before.PersonalEventID)
			assert.ErrorIs(t, err, persistence.ErrNotFound)

			scheduleEvent, err := h.Repos.Events.GetEvent(ctx, after.ScheduleEventID)
			require.NoError(t, err)
			assert.Equal(t, "Open Shift - Barista - 9:00 AM - 5:30 PM", scheduleEvent.Title)
			assert.Empty(t, scheduleEvent.Attendees)

			links := shiftLinks(t, h, shift.ID)
			assert.Equal(t, after.ScheduleEventID, links["scheduleEventId"])
			personal, present := links["personalEventId"]
			assert.True(t, present)
			assert.Nil(t, personal)
		})
	}
}

func TestShiftReconciler_PersonalEventAlreadyGone(t *testing.T) {
	ctx := context.Background()
	h := testfixtures.NewMemoryHarness(t)
	w := testfixtures.NewWorkforce()
	h.SeedWorkforce(t, w)
	schedule := testfixtures.NewSchedule(w.Business.ID, testfixtures.Published())
	shift := morningShift(schedule, testfixtures.AssignedTo(w.AlicePosition.ID))
	h.SeedSchedule(t, schedule, shift)
	engine := testfixtures.NewServiceFactory().NewEngine(h.Repos)

	before, err := engine.ShiftReconciler.SyncSingleShift(ctx, shift.ID, w.Business.ID)
	require.NoError(t, err)
	require.NoError(t, h.Repos.Events.DeleteEvent(ctx, before.PersonalEventID))

	after, err := engine.ShiftReconciler.SyncSingleShift(ctx, shift.ID, w.Business.ID)
	require.NoError(t, err)
	require.NotNil(t, after.StaleDeletion)
	assert.Equal(t, application.StaleAlreadyAbsent, after.StaleDeletion.Outcome)
	assert.NotEmpty(t, after.PersonalEventID)
	assert.NotEqual(t, before.PersonalEventID, after.PersonalEventID)
}

func TestShiftReconciler_PreservesForeignMetadata(t *testing.T) {
	ctx := context.Background()

	for _, h := range testfixtures.Harnesses(t) {
		t.Run(h.Name, func(t *testing.T) {
			w := testfixtures.NewWorkforce()
			h.SeedWorkforce(t, w)
			schedule := testfixtures.NewSchedule(w.Business.ID, testfixtures.Published())
			shift := morningShift(schedule, testfixtures.WithShiftMetadata(map[string]any{
				"source": "import",
				"labels": []any{"weekend"},
			}))
			h.SeedSchedule(t, schedule, shift)
			engine := testfixtures.NewServiceFactory().NewEngine(h.Repos)

			_, err := engine.ShiftReconciler.SyncSingleShift(ctx, shift.ID, w.Business.ID)
			require.NoError(t, err)

			stored, err := h.Repos.Schedules.GetShift(ctx, shift.ID)
			require.NoError(t, err)
			assert.Equal(t, "import", stored.Metadata["source"])
			assert.Equal(t, []any{"weekend"}, stored.Metadata["labels"])
			assert.Contains(t, stored.Metadata, "calendarEvents")
		})
	}
}

type failingCreates struct {
	persistence.EventRepository
	failAt time.Time
}

func (f failingCreates) CreateEvent(ctx context.Context, event persistence.Event) error {
	if event.StartAt.Equal(f.failAt) {
		return errors.New("insert rejected")
	}
	return f.EventRepository.CreateEvent(ctx, event)
}

func TestShiftReconciler_BatchIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	h := testfixtures.NewMemoryHarness(t)
	w := testfixtures.NewWorkforce()
	h.SeedWorkforce(t, w)

	schedule := testfixtures.NewSchedule(w.Business.ID, testfixtures.Published())
	day := time.Date(2024, time.March, 4, 14, 0, 0, 0, time.UTC)
	shifts := []persistence.ScheduleShift{
		testfixtures.NewShift(schedule, testfixtures.AssignedTo(w.AlicePosition.ID), testfixtures.WithShiftTimes(day, day.Add(8*time.Hour))),
		testfixtures.NewShift(schedule, testfixtures.AssignedTo(w.BobPosition.ID), testfixtures.WithShiftTimes(day.AddDate(0, 0, 1), day.AddDate(0, 0, 1).Add(8*time.Hour))),
		testfixtures.NewShift(schedule, testfixtures.WithShiftTimes(day.AddDate(0, 0, 2), day.AddDate(0, 0, 2).Add(8*time.Hour))),
	}
	h.SeedSchedule(t, schedule, shifts...)

	repos := h.Repos
	repos.Events = failingCreates{EventRepository: h.Repos.Events, failAt: shifts[1].StartTime}
	m := metrics.New(prometheus.NewRegistry())
	engine := testfixtures.NewServiceFactory(testfixtures.WithMetrics(m)).NewEngine(repos)

	result, err := engine.ShiftReconciler.SyncPublishedSchedule(ctx, schedule.ID, w.Business.ID)
	require.NoError(t, err)

	require.Len(t, result.Synced, 2)
	assert.Equal(t, shifts[0].ID, result.Synced[0].ShiftID)
	assert.Equal(t, shifts[2].ID, result.Synced[1].ShiftID)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, shifts[1].ID, result.Failures[0].ShiftID)
	assert.EqualError(t, result.Failures[0].Err, "insert rejected")

	failed, err := h.Repos.Schedules.GetShift(ctx, shifts[1].ID)
	require.NoError(t, err)
	assert.NotContains(t, failed.Metadata, "calendarEvents")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Reconciliations.WithLabelValues("shift", "synced")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconciliations.WithLabelValues("shift", "failed")))
}

func TestShiftReconciler_ConcurrentBatch(t *testing.T) {
	ctx := context.Background()

	for _, h := range testfixtures.Harnesses(t) {
		t.Run(h.Name, func(t *testing.T) {
			w := testfixtures.NewWorkforce()
			h.SeedWorkforce(t, w)
			schedule := testfixtures.NewSchedule(w.Business.ID, testfixtures.Published())
			day := time.Date(2024, time.March, 4, 14, 0, 0, 0, time.UTC)
			var shifts []persistence.ScheduleShift
			for i := 0; i < 6; i++ {
				position := w.AlicePosition.ID
				if i%2 == 1 {
					position = w.BobPosition.ID
				}
				start := day.AddDate(0, 0, i)
				shifts = append(shifts, testfixtures.NewShift(schedule,
					testfixtures.AssignedTo(position),
					testfixtures.WithShiftTimes(start, start.Add(6*time.Hour)),
				))
			}
			h.SeedSchedule(t, schedule, shifts...)
			engine := testfixtures.NewServiceFactory(testfixtures.WithShiftConcurrency(4)).NewEngine(h.Repos)

			result, err := engine.ShiftReconciler.SyncPublishedSchedule(ctx, schedule.ID, w.Business.ID)
			require.NoError(t, err)
			assert.Empty(t, result.Failures)
			require.Len(t, result.Synced, len(shifts))

			seen := map[string]bool{}
			for i, synced := range result.Synced {
				assert.Equal(t, shifts[i].ID, synced.ShiftID)
				assert.False(t, seen[synced.ScheduleEventID], "schedule event %s reused", synced.ScheduleEventID)
				seen[synced.ScheduleEventID] = true
			}

			for _, userID := range []string{w.Alice.ID, w.Bob.ID} {
				_, err := h.Repos.Calendars.FindPrimaryPersonalCalendar(ctx, userID)
				assert.NoError(t, err)
			}
			if h.Memory != nil {
				calendar, err := h.Repos.Calendars.FindPrimaryPersonalCalendar(ctx, w.Alice.ID)
				require.NoError(t, err)
				events, err := h.Memory.ListEvents(ctx, calendar.ID)
				require.NoError(t, err)
				assert.Len(t, events, 3)
			}
		})
	}
}

func TestShiftReconciler_CanceledContextSkipsShifts(t *testing.T) {
	h := testfixtures.NewMemoryHarness(t)
	w := testfixtures.NewWorkforce()
	h.SeedWorkforce(t, w)
	schedule := testfixtures.NewSchedule(w.Business.ID, testfixtures.Published())
	first := morningShift(schedule)
	second := morningShift(schedule)
	h.SeedSchedule(t, schedule, first, second)
	engine := testfixtures.NewServiceFactory().NewEngine(h.Repos)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := engine.ShiftReconciler.SyncPublishedSchedule(ctx, schedule.ID, w.Business.ID)
	require.NoError(t, err)
	assert.Empty(t, result.Synced)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, result.Skipped)
}

func TestShiftReconciler_RequiresPublishedSchedule(t *testing.T) {
	ctx := context.Background()
	h := testfixtures.NewMemoryHarness(t)
	w := testfixtures.NewWorkforce()
	h.SeedWorkforce(t, w)
	schedule := testfixtures.NewSchedule(w.Business.ID)
	shift := morningShift(schedule, testfixtures.AssignedTo(w.AlicePosition.ID))
	h.SeedSchedule(t, schedule, shift)
	engine := testfixtures.NewServiceFactory().NewEngine(h.Repos)

	_, err := engine.ShiftReconciler.SyncPublishedSchedule(ctx, schedule.ID, w.Business.ID)
	assert.ErrorIs(t, err, application.ErrScheduleNotPublished)

	single, err := engine.ShiftReconciler.SyncSingleShift(ctx, shift.ID, w.Business.ID)
	require.NoError(t, err)
	assert.True(t, single.Skipped)
	assert.Empty(t, single.ScheduleEventID)

	_, err = h.Repos.Settings.GetBusinessSettings(ctx, w.Business.ID)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestShiftReconciler_UnknownShift(t *testing.T) {
	h := testfixtures.NewMemoryHarness(t)
	engine := testfixtures.NewServiceFactory().NewEngine(h.Repos)

	_, err := engine.ShiftReconciler.SyncSingleShift(context.Background(), "shift-missing", "biz-1")

	var syncErr *application.ShiftSyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, "shift-missing", syncErr.ShiftID)
	assert.ErrorIs(t, err, application.ErrNotFound)
}

func TestShiftReconciler_UnknownPositionFailsShift(t *testing.T) {
	ctx := context.Background()
	h := testfixtures.NewMemoryHarness(t)
	w := testfixtures.NewWorkforce()
	h.SeedWorkforce(t, w)
	schedule := testfixtures.NewSchedule(w.Business.ID, testfixtures.Published())
	shift := morningShift(schedule, testfixtures.AssignedTo("pos-ghost"))
	h.SeedSchedule(t, schedule, shift)
	engine := testfixtures.NewServiceFactory().NewEngine(h.Repos)

	result, err := engine.ShiftReconciler.SyncPublishedSchedule(ctx, schedule.ID, w.Business.ID)
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.ErrorIs(t, result.Failures[0], application.ErrNotFound)
}

func TestShiftReconciler_ConcurrentSyncsShareEvents(t *testing.T) {
	ctx := context.Background()

	for _, h := range testfixtures.Harnesses(t) {
		t.Run(h.Name, func(t *testing.T) {
			w := testfixtures.NewWorkforce()
			h.SeedWorkforce(t, w)
			schedule := testfixtures.NewSchedule(w.Business.ID, testfixtures.Published())
			day := time.Date(2024, time.March, 4, 14, 0, 0, 0, time.UTC)
			var shifts []persistence.ScheduleShift
			for i := 0; i < 3; i++ {
				start := day.AddDate(0, 0, i)
				shifts = append(shifts, testfixtures.NewShift(schedule,
					testfixtures.AssignedTo(w.AlicePosition.ID),
					testfixtures.WithShiftTimes(start, start.Add(6*time.Hour)),
				))
			}
			h.SeedSchedule(t, schedule, shifts...)
			engine := testfixtures.NewServiceFactory(testfixtures.WithShiftConcurrency(3)).NewEngine(h.Repos)

			var (
				wg      sync.WaitGroup
				results = make([][2]application.ShiftSyncResult, len(shifts))
				errs    = make([][2]error, len(shifts))
				batch   application.BatchResult
				bErr    error
			)
			for i, shift := range shifts {
				for j := 0; j < 2; j++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						results[i][j], errs[i][j] = engine.ShiftReconciler.SyncSingleShift(ctx, shift.ID, w.Business.ID)
					}()
				}
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				batch, bErr = engine.ShiftReconciler.SyncPublishedSchedule(ctx, schedule.ID, w.Business.ID)
			}()
			wg.Wait()

			require.NoError(t, bErr)
			assert.Empty(t, batch.Failures)
			for i, shift := range shifts {
				require.NoError(t, errs[i][0])
				require.NoError(t, errs[i][1])
				assert.Equal(t, results[i][0].ScheduleEventID, results[i][1].ScheduleEventID, "shift %s", shift.ID)
				assert.Equal(t, results[i][0].PersonalEventID, results[i][1].PersonalEventID, "shift %s", shift.ID)
				assert.Nil(t, results[i][0].StaleDeletion)
				assert.Nil(t, results[i][1].StaleDeletion)

				links := shiftLinks(t, h, shift.ID)
				assert.Equal(t, results[i][0].ScheduleEventID, links["scheduleEventId"])
				assert.Equal(t, results[i][0].PersonalEventID, links["personalEventId"])
			}

			settings, err := h.Repos.Settings.GetBusinessSettings(ctx, w.Business.ID)
			require.NoError(t, err)
			personal, err := h.Repos.Calendars.FindPrimaryPersonalCalendar(ctx, w.Alice.ID)
			require.NoError(t, err)
			assert.Equal(t, len(shifts), countEvents(t, h, *settings.ScheduleCalendarID))
			assert.Equal(t, len(shifts), countEvents(t, h, personal.ID))
		})
	}
}

func TestShiftReconciler_RejectsForeignBusiness(t *testing.T) {
	ctx := context.Background()
	h := testfixtures.NewMemoryHarness(t)
	w := testfixtures.NewWorkforce()
	h.SeedWorkforce(t, w)
	schedule := testfixtures.NewSchedule(w.Business.ID, testfixtures.Published())
	shift := morningShift(schedule, testfixtures.AssignedTo(w.AlicePosition.ID))
	h.SeedSchedule(t, schedule, shift)
	engine := testfixtures.NewServiceFactory().NewEngine(h.Repos)

	_, err := engine.ShiftReconciler.SyncSingleShift(ctx, shift.ID, "biz-other")
	var syncErr *application.ShiftSyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, shift.ID, syncErr.ShiftID)
	assert.ErrorIs(t, err, application.ErrNotFound)

	_, err = engine.ShiftReconciler.SyncPublishedSchedule(ctx, schedule.ID, "biz-other")
	assert.ErrorIs(t, err, application.ErrNotFound)

	_, err = h.Repos.Settings.GetBusinessSettings(ctx, w.Business.ID)
	assert.ErrorIs(t, err, persistence.ErrNotFound, "nothing is provisioned for a mismatched business")

	result, err := engine.ShiftReconciler.SyncSingleShift(ctx, shift.ID, "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.ScheduleEventID, "an empty business id defers to the shift")
}
