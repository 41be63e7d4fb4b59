package repositories

import (
	"context"

	"reliefops/internal/common"
	"reliefops/internal/models"

	"github.com/google/uuid"
)

type disasterRepo struct {
	db Database
}

func NewDisasterRepo(db Database) DisasterRepository {
	return &disasterRepo{db: db}
}

func (r *disasterRepo) Create(ctx context.Context, d *models.Disaster) error {
	query := `
		INSERT INTO disasters (id, name, disaster_type, severity, status, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query, d.ID, d.Name, d.Type, d.Severity, d.Status, d.StartDate, d.EndDate)
	return mapPgError(err, "disaster", d.ID.String())
}

func (r *disasterRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Disaster, error) {
	return r.get(ctx, `SELECT id, name, disaster_type, severity, status, start_date, end_date FROM disasters WHERE id = $1`, id)
}

func (r *disasterRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Disaster, error) {
	return r.get(ctx, `SELECT id, name, disaster_type, severity, status, start_date, end_date FROM disasters WHERE id = $1 FOR UPDATE`, id)
}

func (r *disasterRepo) get(ctx context.Context, query string, id uuid.UUID) (*models.Disaster, error) {
	d := &models.Disaster{}
	err := r.db.QueryRow(ctx, query, id).Scan(&d.ID, &d.Name, &d.Type, &d.Severity, &d.Status, &d.StartDate, &d.EndDate)
	if err != nil {
		return nil, mapPgError(err, "disaster", id.String())
	}
	return d, nil
}

func (r *disasterRepo) Update(ctx context.Context, d *models.Disaster) error {
	tag, err := r.db.Exec(ctx, `UPDATE disasters SET status = $1, end_date = $2 WHERE id = $3`, d.Status, d.EndDate, d.ID)
	if err != nil {
		return mapPgError(err, "disaster", d.ID.String())
	}
	if tag.RowsAffected() == 0 {
		return common.NewNotFoundError("disaster", d.ID)
	}
	return nil
}

type teamRepo struct {
	db Database
}

func NewTeamRepo(db Database) TeamRepository {
	return &teamRepo{db: db}
}

func (r *teamRepo) Create(ctx context.Context, t *models.ReliefTeam) error {
	query := `INSERT INTO relief_teams (id, disaster_id, team_name, status) VALUES ($1, $2, $3, $4)`
	_, err := r.db.Exec(ctx, query, t.ID, t.DisasterID, t.Name, t.Status)
	return mapPgError(err, "relief team", t.ID.String())
}

func (r *teamRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ReliefTeam, error) {
	t := &models.ReliefTeam{}
	query := `SELECT id, disaster_id, team_name, status FROM relief_teams WHERE id = $1`
	if err := r.db.QueryRow(ctx, query, id).Scan(&t.ID, &t.DisasterID, &t.Name, &t.Status); err != nil {
		return nil, mapPgError(err, "relief team", id.String())
	}
	return t, nil
}

func (r *teamRepo) LockByDisaster(ctx context.Context, disasterID uuid.UUID) ([]*models.ReliefTeam, error) {
	query := `
		SELECT id, disaster_id, team_name, status
		FROM relief_teams
		WHERE disaster_id = $1
		ORDER BY id
		FOR UPDATE
	`
	rows, err := r.db.Query(ctx, query, disasterID)
	if err != nil {
		return nil, mapPgError(err, "relief team", "")
	}
	defer rows.Close()

	var teams []*models.ReliefTeam
	for rows.Next() {
		t := &models.ReliefTeam{}
		if err := rows.Scan(&t.ID, &t.DisasterID, &t.Name, &t.Status); err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, mapPgError(rows.Err(), "relief team", "")
}

func (r *teamRepo) Update(ctx context.Context, t *models.ReliefTeam) error {
	tag, err := r.db.Exec(ctx, `UPDATE relief_teams SET status = $1 WHERE id = $2`, t.Status, t.ID)
	if err != nil {
		return mapPgError(err, "relief team", t.ID.String())
	}
	if tag.RowsAffected() == 0 {
		return common.NewNotFoundError("relief team", t.ID)
	}
	return nil
}

type volunteerRepo struct {
	db Database
}

func NewVolunteerRepo(db Database) VolunteerRepository {
	return &volunteerRepo{db: db}
}

func (r *volunteerRepo) Create(ctx context.Context, v *models.Volunteer) error {
	query := `INSERT INTO volunteers (id, name, team_id, availability) VALUES ($1, $2, $3, $4)`
	_, err := r.db.Exec(ctx, query, v.ID, v.Name, v.TeamID, v.Availability)
	return mapPgError(err, "volunteer", v.ID.String())
}

func (r *volunteerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Volunteer, error) {
	v := &models.Volunteer{}
	query := `SELECT id, name, team_id, availability FROM volunteers WHERE id = $1`
	if err := r.db.QueryRow(ctx, query, id).Scan(&v.ID, &v.Name, &v.TeamID, &v.Availability); err != nil {
		return nil, mapPgError(err, "volunteer", id.String())
	}
	return v, nil
}

func (r *volunteerRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Volunteer, error) {
	v := &models.Volunteer{}
	query := `SELECT id, name, team_id, availability FROM volunteers WHERE id = $1 FOR UPDATE`
	if err := r.db.QueryRow(ctx, query, id).Scan(&v.ID, &v.Name, &v.TeamID, &v.Availability); err != nil {
		return nil, mapPgError(err, "volunteer", id.String())
	}
	return v, nil
}

func (r *volunteerRepo) LockByTeams(ctx context.Context, teamIDs []uuid.UUID) ([]*models.Volunteer, error) {
	if len(teamIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, name, team_id, availability
		FROM volunteers
		WHERE team_id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`
	return r.list(ctx, query, sortedIDs(teamIDs))
}

func (r *volunteerRepo) Update(ctx context.Context, v *models.Volunteer) error {
	tag, err := r.db.Exec(ctx, `UPDATE volunteers SET team_id = $1, availability = $2 WHERE id = $3`, v.TeamID, v.Availability, v.ID)
	if err != nil {
		return mapPgError(err, "volunteer", v.ID.String())
	}
	if tag.RowsAffected() == 0 {
		return common.NewNotFoundError("volunteer", v.ID)
	}
	return nil
}

func (r *volunteerRepo) ListOrphaned(ctx context.Context) ([]*models.Volunteer, error) {
	query := `
		SELECT v.id, v.name, v.team_id, v.availability
		FROM volunteers v
		JOIN relief_teams t ON t.id = v.team_id
		WHERE t.status = 'Disbanded'
		ORDER BY v.id
	`
	return r.list(ctx, query)
}

func (r *volunteerRepo) list(ctx context.Context, query string, args ...interface{}) ([]*models.Volunteer, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(err, "volunteer", "")
	}
	defer rows.Close()

	var volunteers []*models.Volunteer
	for rows.Next() {
		v := &models.Volunteer{}
		if err := rows.Scan(&v.ID, &v.Name, &v.TeamID, &v.Availability); err != nil {
			return nil, err
		}
		volunteers = append(volunteers, v)
	}
	return volunteers, mapPgError(rows.Err(), "volunteer", "")
}
