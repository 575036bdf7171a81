package postgres

import (
	"context"
	"database/sql"

	"dedicated/internal/domain"
	"dedicated/internal/repository"
)

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT id, name, email, phone, role, created_at FROM users WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var user domain.User
	var email, phone sql.NullString
	err := row.Scan(&user.ID, &user.Name, &email, &phone, &user.Role, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	user.Email = email.String
	user.Phone = phone.String
	return &user, nil
}

// VehicleCategoryRepository implements repository.VehicleCategoryRepository using PostgreSQL.
type VehicleCategoryRepository struct {
	db *sql.DB
}

// NewVehicleCategoryRepository creates a new VehicleCategoryRepository.
func NewVehicleCategoryRepository(db *sql.DB) *VehicleCategoryRepository {
	return &VehicleCategoryRepository{db: db}
}

// GetByID retrieves a vehicle category by ID.
func (r *VehicleCategoryRepository) GetByID(ctx context.Context, id string) (*domain.VehicleCategory, error) {
	query := `SELECT id, name, active FROM vehicle_categories WHERE id = $1`

	var vc domain.VehicleCategory
	err := r.db.QueryRowContext(ctx, query, id).Scan(&vc.ID, &vc.Name, &vc.Active)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &vc, nil
}

var (
	_ repository.UserRepository            = (*UserRepository)(nil)
	_ repository.VehicleCategoryRepository = (*VehicleCategoryRepository)(nil)
)
