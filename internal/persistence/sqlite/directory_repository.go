package sqlite

import (
	"context"

	"github.com/example/workforce-calendar/internal/persistence"
)

// DirectoryRepository implements persistence.DirectoryRepository and
// persistence.DirectoryWriter using SQLite.
type DirectoryRepository struct {
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewDirectoryRepository creates a new SQLite directory repository.
func NewDirectoryRepository(pool *ConnectionPool) *DirectoryRepository {
	return &DirectoryRepository{
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// GetUser retrieves a user by ID.
func (r *DirectoryRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	var user persistence.User
	err := r.helper.QueryRow(ctx,
		`SELECT id, email, display_name, default_workspace_name FROM users WHERE id = ?`, id,
	).Scan(&user.ID, &user.Email, &user.DisplayName, &user.DefaultWorkspaceName)
	if err != nil {
		return persistence.User{}, r.mapper.MapError(err)
	}
	return user, nil
}

// GetBusiness retrieves a business by ID.
func (r *DirectoryRepository) GetBusiness(ctx context.Context, id string) (persistence.Business, error) {
	var business persistence.Business
	err := r.helper.QueryRow(ctx,
		`SELECT id, name, timezone FROM businesses WHERE id = ?`, id,
	).Scan(&business.ID, &business.Name, &business.Timezone)
	if err != nil {
		return persistence.Business{}, r.mapper.MapError(err)
	}
	return business, nil
}

// GetBusinessMember retrieves the membership of a user in a business.
func (r *DirectoryRepository) GetBusinessMember(ctx context.Context, businessID, userID string) (persistence.BusinessMember, error) {
	query := `SELECT business_id, user_id, role, can_manage, active
		FROM business_members WHERE business_id = ? AND user_id = ?`
	member, err := scanBusinessMember(r.helper.QueryRow(ctx, query, businessID, userID))
	if err != nil {
		return persistence.BusinessMember{}, r.mapper.MapError(err)
	}
	return member, nil
}

// ListActiveBusinessMembers returns the active members ordered by user ID.
func (r *DirectoryRepository) ListActiveBusinessMembers(ctx context.Context, businessID string) ([]persistence.BusinessMember, error) {
	query := `SELECT business_id, user_id, role, can_manage, active
		FROM business_members WHERE business_id = ? AND active = 1
		ORDER BY user_id ASC`
	rows, err := r.helper.Query(ctx, query, businessID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	members := make([]persistence.BusinessMember, 0)
	for rows.Next() {
		member, err := scanBusinessMember(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return members, nil
}

// GetEmployeePosition retrieves an employee position by ID.
func (r *DirectoryRepository) GetEmployeePosition(ctx context.Context, id string) (persistence.EmployeePosition, error) {
	var position persistence.EmployeePosition
	err := r.helper.QueryRow(ctx,
		`SELECT id, business_id, user_id, position_title, department_name, active
		FROM employee_positions WHERE id = ?`, id,
	).Scan(&position.ID, &position.BusinessID, &position.UserID, &position.PositionTitle, &position.DepartmentName, &position.Active)
	if err != nil {
		return persistence.EmployeePosition{}, r.mapper.MapError(err)
	}
	return position, nil
}

// SaveUser inserts or replaces a user.
func (r *DirectoryRepository) SaveUser(ctx context.Context, user persistence.User) error {
	_, err := r.helper.Exec(ctx,
		`INSERT INTO users (id, email, display_name, default_workspace_name) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			display_name = excluded.display_name,
			default_workspace_name = excluded.default_workspace_name`,
		user.ID, user.Email, user.DisplayName, user.DefaultWorkspaceName,
	)
	return r.mapper.MapError(err)
}

// SaveBusiness inserts or replaces a business.
func (r *DirectoryRepository) SaveBusiness(ctx context.Context, business persistence.Business) error {
	_, err := r.helper.Exec(ctx,
		`INSERT INTO businesses (id, name, timezone) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, timezone = excluded.timezone`,
		business.ID, business.Name, business.Timezone,
	)
	return r.mapper.MapError(err)
}

// SaveBusinessMember inserts or replaces a business membership.
func (r *DirectoryRepository) SaveBusinessMember(ctx context.Context, member persistence.BusinessMember) error {
	_, err := r.helper.Exec(ctx,
		`INSERT INTO business_members (business_id, user_id, role, can_manage, active) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (business_id, user_id) DO UPDATE SET
			role = excluded.role,
			can_manage = excluded.can_manage,
			active = excluded.active`,
		member.BusinessID, member.UserID, string(member.Role), member.CanManage, member.Active,
	)
	return r.mapper.MapError(err)
}

// SaveEmployeePosition inserts or replaces an employee position.
func (r *DirectoryRepository) SaveEmployeePosition(ctx context.Context, position persistence.EmployeePosition) error {
	_, err := r.helper.Exec(ctx,
		`INSERT INTO employee_positions (id, business_id, user_id, position_title, department_name, active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			business_id = excluded.business_id,
			user_id = excluded.user_id,
			position_title = excluded.position_title,
			department_name = excluded.department_name,
			active = excluded.active`,
		position.ID, position.BusinessID, position.UserID, position.PositionTitle, position.DepartmentName, position.Active,
	)
	return r.mapper.MapError(err)
}

func scanBusinessMember(row rowScanner) (persistence.BusinessMember, error) {
	var (
		member persistence.BusinessMember
		role   string
	)
	if err := row.Scan(&member.BusinessID, &member.UserID, &role, &member.CanManage, &member.Active); err != nil {
		return persistence.BusinessMember{}, err
	}
	member.Role = persistence.BusinessRole(role)
	return member, nil
}
