package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-live/internal/model"
)

// AssignmentRepository is a read-only view over the assignment, simulation,
// group membership and student tables owned by the main exam backend. The
// room engine never writes these.
type AssignmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssignmentRepository creates a new AssignmentRepository.
func NewAssignmentRepository(pool *pgxpool.Pool) *AssignmentRepository {
	return &AssignmentRepository{pool: pool}
}

// GetAssignment retrieves an assignment by ID.
func (r *AssignmentRepository) GetAssignment(ctx context.Context, id uuid.UUID) (*model.Assignment, error) {
	a := &model.Assignment{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, simulation_id, status, student_id, group_id, start_date, end_date
		 FROM assignments
		 WHERE id = $1`, id,
	).Scan(&a.ID, &a.SimulationID, &a.Status, &a.StudentID, &a.GroupID, &a.StartDate, &a.EndDate)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetSimulation retrieves a simulation by ID.
func (r *AssignmentRepository) GetSimulation(ctx context.Context, id uuid.UUID) (*model.Simulation, error) {
	s := &model.Simulation{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, access_mode, duration_minutes, question_count, start_date, end_date
		 FROM simulations
		 WHERE id = $1`, id,
	).Scan(&s.ID, &s.Title, &s.AccessMode, &s.DurationMinutes, &s.QuestionCount, &s.StartDate, &s.EndDate)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListGroupMembers retrieves the students of a group.
func (r *AssignmentRepository) ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]model.StudentRef, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.name
		 FROM group_members gm
		 JOIN students s ON gm.student_id = s.id
		 WHERE gm.group_id = $1
		 ORDER BY s.name ASC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []model.StudentRef
	for rows.Next() {
		var s model.StudentRef
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, err
		}
		members = append(members, s)
	}
	return members, rows.Err()
}

// GetStudent retrieves a student reference by ID.
func (r *AssignmentRepository) GetStudent(ctx context.Context, id int) (*model.StudentRef, error) {
	s := &model.StudentRef{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name FROM students WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name)
	if err != nil {
		return nil, err
	}
	return s, nil
}
