package storage

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/apptbook/libs/db"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
)

type CatalogRepository struct {
	pool *db.Pool
}

func NewCatalogRepository(pool *db.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

var _ booking.Catalog = (*CatalogRepository)(nil)

func (r *CatalogRepository) GetService(ctx context.Context, serviceID string) (model.Service, error) {
	var svc model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, duration_hours, preparation_hours, cleanup_hours, price::float8,
			is_bookable, requires_approval, max_advance_days, requires_specific_staff
		FROM services
		WHERE id = $1
	`, serviceID).Scan(
		&svc.ID,
		&svc.Name,
		&svc.Duration,
		&svc.Preparation,
		&svc.Cleanup,
		&svc.Price,
		&svc.Bookable,
		&svc.RequiresApproval,
		&svc.MaxAdvanceDays,
		&svc.RequiresSpecificStaff,
	)
	if IsNotFound(err) {
		return model.Service{}, fmt.Errorf("%w: service %s", booking.ErrNotFound, serviceID)
	}
	if err != nil {
		return model.Service{}, err
	}
	if !svc.RequiresSpecificStaff {
		return svc, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT staff_id
		FROM service_allowed_staff
		WHERE service_id = $1
		ORDER BY staff_id
	`, serviceID)
	if err != nil {
		return model.Service{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return model.Service{}, err
		}
		svc.AllowedStaffIDs = append(svc.AllowedStaffIDs, id)
	}
	if rows.Err() != nil {
		return model.Service{}, rows.Err()
	}
	return svc, nil
}

// GetStaff loads a staff member with their working days. Staff without
// configured days fall back to Monday to Friday.
func (r *CatalogRepository) GetStaff(ctx context.Context, staffID string) (model.Staff, error) {
	var st model.Staff
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, branch_id, branch_name, is_bookable, start_hour, end_hour
		FROM staff
		WHERE id = $1
	`, staffID).Scan(
		&st.ID,
		&st.Name,
		&st.Email,
		&st.Phone,
		&st.BranchID,
		&st.BranchName,
		&st.Bookable,
		&st.Hours.StartHour,
		&st.Hours.EndHour,
	)
	if IsNotFound(err) {
		return model.Staff{}, fmt.Errorf("%w: staff %s", booking.ErrNotFound, staffID)
	}
	if err != nil {
		return model.Staff{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT weekday, is_working
		FROM staff_working_days
		WHERE staff_id = $1
		ORDER BY weekday ASC
	`, staffID)
	if err != nil {
		return model.Staff{}, err
	}
	defer rows.Close()

	days := map[model.Weekday]bool{}
	configured := false
	for rows.Next() {
		var wd int16
		var working bool
		if err := rows.Scan(&wd, &working); err != nil {
			return model.Staff{}, err
		}
		configured = true
		days[model.Weekday(wd)] = working
	}
	if rows.Err() != nil {
		return model.Staff{}, rows.Err()
	}
	if !configured {
		days = model.DefaultWorkingHours().Days
	}
	st.Hours.Days = days
	return st, nil
}
