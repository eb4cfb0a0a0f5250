package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/workforce-calendar/internal/metrics"
	"github.com/example/workforce-calendar/internal/persistence"
)

const (
	scheduleCalendarName     = "Schedule"
	defaultPersonalName      = "My Dashboard"
	maxScheduleInstallRounds = 3
)

// ProvisionerDeps groups the collaborators of a Provisioner.
type ProvisionerDeps struct {
	Calendars       persistence.CalendarRepository
	Settings        persistence.SettingsRepository
	Directory       persistence.DirectoryRepository
	IDGenerator     func() string
	Now             func() time.Time
	DefaultTimezone string
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
}

// Provisioner guarantees that the calendars and memberships the reconcilers
// write into exist.
type Provisioner struct {
	calendars       persistence.CalendarRepository
	settings        persistence.SettingsRepository
	directory       persistence.DirectoryRepository
	idGenerator     func() string
	now             func() time.Time
	defaultTimezone string
	logger          *slog.Logger
	metrics         *metrics.Metrics
}

// NewProvisioner wires dependencies for calendar provisioning.
func NewProvisioner(deps ProvisionerDeps) *Provisioner {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.DefaultTimezone == "" {
		deps.DefaultTimezone = "UTC"
	}
	return &Provisioner{
		calendars:       deps.Calendars,
		settings:        deps.Settings,
		directory:       deps.Directory,
		idGenerator:     deps.IDGenerator,
		now:             deps.Now,
		defaultTimezone: deps.DefaultTimezone,
		logger:          defaultLogger(deps.Logger),
		metrics:         deps.Metrics,
	}
}

// EnsureBusinessScheduleCalendar returns the id of the business's shared
// Schedule calendar, creating and installing it when the settings row has no
// usable id. Concurrent callers converge on a single calendar.
func (p *Provisioner) EnsureBusinessScheduleCalendar(ctx context.Context, businessID string) (string, error) {
	logger := serviceLogger(ctx, p.logger, "Provisioner", "EnsureBusinessScheduleCalendar", "business_id", businessID)

	business, err := p.directory.GetBusiness(ctx, businessID)
	if err != nil {
		return "", provisioningError("schedule calendar", businessID, err)
	}

	for round := 0; round < maxScheduleInstallRounds; round++ {
		settings, err := p.ensureSettings(ctx, businessID)
		if err != nil {
			return "", provisioningError("business settings", businessID, err)
		}

		if id, ok, err := p.resolveCachedCalendar(ctx, logger, settings.ScheduleCalendarID); err != nil {
			return "", provisioningError("schedule calendar", businessID, err)
		} else if ok {
			return id, nil
		}

		now := p.now()
		calendar := persistence.Calendar{
			ID:          p.idGenerator(),
			Name:        scheduleCalendarName,
			ContextType: persistence.CalendarContextBusiness,
			ContextID:   businessID,
			Timezone:    p.timezoneOr(business.Timezone),
			IsSystem:    true,
			IsDeletable: false,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := p.calendars.CreateCalendar(ctx, calendar); err != nil {
			return "", provisioningError("schedule calendar", businessID, err)
		}

		err = p.settings.SwapScheduleCalendar(ctx, businessID, settings.ScheduleCalendarID, calendar.ID, now)
		if err == nil {
			p.metrics.CalendarProvisioned(string(persistence.CalendarContextBusiness))
			logger.InfoContext(ctx, "schedule calendar created", "calendar_id", calendar.ID)
			return calendar.ID, nil
		}

		if delErr := p.calendars.DeleteCalendar(ctx, calendar.ID); delErr != nil && !errors.Is(delErr, persistence.ErrNotFound) {
			logger.WarnContext(ctx, "failed to delete orphan schedule calendar", "calendar_id", calendar.ID, "error", delErr)
		}
		if !errors.Is(err, persistence.ErrConflict) {
			return "", provisioningError("schedule calendar", businessID, err)
		}
		logger.DebugContext(ctx, "lost schedule calendar install race", "round", round+1)
	}

	return "", provisioningError("schedule calendar", businessID,
		fmt.Errorf("%w: settings kept changing after %d attempts", ErrConflict, maxScheduleInstallRounds))
}

func (p *Provisioner) ensureSettings(ctx context.Context, businessID string) (persistence.BusinessSettings, error) {
	settings, err := p.settings.GetBusinessSettings(ctx, businessID)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return persistence.BusinessSettings{}, err
	}

	now := p.now()
	settings = persistence.BusinessSettings{BusinessID: businessID, CreatedAt: now, UpdatedAt: now}
	err = p.settings.CreateBusinessSettings(ctx, settings)
	switch {
	case err == nil:
		return settings, nil
	case errors.Is(err, persistence.ErrDuplicate):
		return p.settings.GetBusinessSettings(ctx, businessID)
	default:
		return persistence.BusinessSettings{}, err
	}
}

// resolveCachedCalendar reports whether the cached id still names a calendar.
func (p *Provisioner) resolveCachedCalendar(ctx context.Context, logger *slog.Logger, cached *string) (string, bool, error) {
	if cached == nil || *cached == "" {
		return "", false, nil
	}
	calendar, err := p.calendars.GetCalendar(ctx, *cached)
	switch {
	case err == nil:
		return calendar.ID, true, nil
	case errors.Is(err, persistence.ErrNotFound):
		logger.WarnContext(ctx, "cached schedule calendar no longer exists", "calendar_id", *cached)
		return "", false, nil
	default:
		return "", false, err
	}
}

// EnsurePersonalCalendar returns the user's primary personal calendar,
// creating it with an OWNER membership when missing.
func (p *Provisioner) EnsurePersonalCalendar(ctx context.Context, userID string) (string, error) {
	logger := serviceLogger(ctx, p.logger, "Provisioner", "EnsurePersonalCalendar", "user_id", userID)

	calendar, err := p.calendars.FindPrimaryPersonalCalendar(ctx, userID)
	switch {
	case err == nil:
	case errors.Is(err, persistence.ErrNotFound):
		calendar, err = p.createPersonalCalendar(ctx, logger, userID)
		if err != nil {
			return "", provisioningError("personal calendar", userID, err)
		}
	default:
		return "", provisioningError("personal calendar", userID, err)
	}

	if err := p.grantRole(ctx, logger, calendar.ID, userID, persistence.CalendarRoleOwner); err != nil {
		return "", provisioningError("owner membership", userID, err)
	}
	return calendar.ID, nil
}

func (p *Provisioner) createPersonalCalendar(ctx context.Context, logger *slog.Logger, userID string) (persistence.Calendar, error) {
	user, err := p.directory.GetUser(ctx, userID)
	if err != nil {
		return persistence.Calendar{}, err
	}
	name := user.DefaultWorkspaceName
	if name == "" {
		name = defaultPersonalName
	}

	now := p.now()
	calendar := persistence.Calendar{
		ID:          p.idGenerator(),
		Name:        name,
		ContextType: persistence.CalendarContextPersonal,
		ContextID:   userID,
		Timezone:    p.defaultTimezone,
		IsPrimary:   true,
		IsSystem:    false,
		IsDeletable: false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = p.calendars.CreateCalendar(ctx, calendar)
	switch {
	case err == nil:
		p.metrics.CalendarProvisioned(string(persistence.CalendarContextPersonal))
		logger.InfoContext(ctx, "personal calendar created", "calendar_id", calendar.ID)
		return calendar, nil
	case errors.Is(err, persistence.ErrDuplicate):
		return p.calendars.FindPrimaryPersonalCalendar(ctx, userID)
	default:
		return persistence.Calendar{}, err
	}
}

// EnsureMembership grants each user at least the calendar role derived from
// their business role. A nil userIDs covers every active member of the
// business. Existing roles are never lowered.
func (p *Provisioner) EnsureMembership(ctx context.Context, calendarID, businessID string, userIDs []string) error {
	logger := serviceLogger(ctx, p.logger, "Provisioner", "EnsureMembership", "calendar_id", calendarID, "business_id", businessID)

	members, err := p.targetMembers(ctx, businessID, userIDs)
	if err != nil {
		return provisioningError("membership", calendarID, err)
	}
	for _, member := range members {
		if err := p.grantRole(ctx, logger, calendarID, member.UserID, calendarRoleFor(member)); err != nil {
			return provisioningError("membership", calendarID, err)
		}
	}
	return nil
}

func (p *Provisioner) targetMembers(ctx context.Context, businessID string, userIDs []string) ([]persistence.BusinessMember, error) {
	if userIDs == nil {
		return p.directory.ListActiveBusinessMembers(ctx, businessID)
	}

	members := make([]persistence.BusinessMember, 0, len(userIDs))
	for _, userID := range userIDs {
		member, err := p.directory.GetBusinessMember(ctx, businessID, userID)
		switch {
		case err == nil:
			members = append(members, member)
		case errors.Is(err, persistence.ErrNotFound):
			// Employees without a directory membership still read the schedule.
			members = append(members, persistence.BusinessMember{
				BusinessID: businessID,
				UserID:     userID,
				Role:       persistence.BusinessRoleEmployee,
			})
		default:
			return nil, err
		}
	}
	return members, nil
}

// calendarRoleFor maps a business role to the Schedule calendar role.
func calendarRoleFor(member persistence.BusinessMember) persistence.CalendarRole {
	switch {
	case member.Role == persistence.BusinessRoleAdmin || member.CanManage:
		return persistence.CalendarRoleEditor
	case member.Role == persistence.BusinessRoleManager:
		return persistence.CalendarRoleEditor
	default:
		return persistence.CalendarRoleReader
	}
}

// grantRole creates the membership or escalates it to role.
func (p *Provisioner) grantRole(ctx context.Context, logger *slog.Logger, calendarID, userID string, role persistence.CalendarRole) error {
	existing, err := p.calendars.GetMember(ctx, calendarID, userID)
	switch {
	case err == nil:
		return p.escalate(ctx, logger, existing, role)
	case !errors.Is(err, persistence.ErrNotFound):
		return err
	}

	now := p.now()
	err = p.calendars.CreateMember(ctx, persistence.CalendarMember{
		CalendarID: calendarID,
		UserID:     userID,
		Role:       role,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	switch {
	case err == nil:
		p.metrics.MembershipChanged("created")
		logger.DebugContext(ctx, "calendar membership created", "user_id", userID, "role", role)
		return nil
	case errors.Is(err, persistence.ErrDuplicate):
		existing, err = p.calendars.GetMember(ctx, calendarID, userID)
		if err != nil {
			return err
		}
		return p.escalate(ctx, logger, existing, role)
	default:
		return err
	}
}

func (p *Provisioner) escalate(ctx context.Context, logger *slog.Logger, existing persistence.CalendarMember, role persistence.CalendarRole) error {
	if existing.Role.Rank() >= role.Rank() {
		return nil
	}
	if err := p.calendars.UpdateMemberRole(ctx, existing.CalendarID, existing.UserID, role, p.now()); err != nil {
		return err
	}
	p.metrics.MembershipChanged("escalated")
	logger.DebugContext(ctx, "calendar membership escalated", "user_id", existing.UserID, "from", existing.Role, "to", role)
	return nil
}

func (p *Provisioner) timezoneOr(tz string) string {
	if tz != "" {
		return tz
	}
	return p.defaultTimezone
}
