// Package pgstore implements the Store contract on a hosted Postgres
// backend, using plain SQL and an embedded migration set.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/istm-portal/backend/model"
	"github.com/istm-portal/backend/store"
)

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open connects, tunes the pool and brings the schema up to date.
func Open(dbURL string) (*Store, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, errors.Wrap(err, "pg.open")
	}

	// pool tuning
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(2 * time.Hour)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "pg.ping")
	}

	if err = migrateDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "pg.migrate")
	}

	return &Store{db: db}, nil
}

// New wraps an already-open handle. Used by tests and the migration CLI.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

// DB exposes the raw handle for the one-shot migration CLI.
func (s *Store) DB() *sql.DB {
	return s.db
}

const formColumns = `
	f.id, f.version, f.title, f.description, f.fields, f.filieres,
	f.status, f.created_by, f.created_at, f.updated_at`

func (s *Store) GetForms(ctx context.Context) ([]model.Form, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+formColumns+`,
			(SELECT count(*) FROM submission sub WHERE sub.form_id = f.id)
		FROM form f
		ORDER BY f.created_at`)
	if err != nil {
		return nil, errors.Wrap(err, "pg.get_forms")
	}
	defer rows.Close()

	forms := []model.Form{}
	for rows.Next() {
		form, err := scanForm(rows, true)
		if err != nil {
			return nil, errors.Wrap(err, "pg.get_forms.scan")
		}
		forms = append(forms, form)
	}
	return forms, rows.Err()
}

func (s *Store) GetForm(ctx context.Context, id string) (model.Form, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+formColumns+`,
			(SELECT count(*) FROM submission sub WHERE sub.form_id = f.id)
		FROM form f
		WHERE f.id = $1`,
		id,
	)
	if err != nil {
		return model.Form{}, errors.Wrap(err, "pg.get_form")
	}
	defer rows.Close()

	if !rows.Next() {
		return model.Form{}, store.ErrNotFound
	}
	form, err := scanForm(rows, true)
	if err != nil {
		return model.Form{}, errors.Wrap(err, "pg.get_form.scan")
	}
	return form, nil
}

func (s *Store) CreateForm(ctx context.Context, form *model.Form) error {
	fields, filieres, err := marshalFormJSON(form)
	if err != nil {
		return errors.Wrap(err, "pg.insert_form.marshal")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO form (id, version, title, description, fields, filieres,
			status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		form.ID, form.Version, form.Title, form.Description, fields, filieres,
		form.Status, form.CreatedBy, form.CreatedAt, form.UpdatedAt,
	)
	return errors.Wrap(err, "pg.insert_form")
}

func (s *Store) UpdateForm(ctx context.Context, form *model.Form) error {
	fields, filieres, err := marshalFormJSON(form)
	if err != nil {
		return errors.Wrap(err, "pg.update_form.marshal")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE form
		SET title = $1,
			description = $2,
			fields = $3,
			filieres = $4,
			status = $5,
			version = version + 1,
			updated_at = $6
		WHERE id = $7
			AND version = $8`,
		form.Title, form.Description, fields, filieres, form.Status,
		time.Now().UTC(), form.ID, form.Version,
	)
	if err != nil {
		return errors.Wrap(err, "pg.update_form")
	}

	// optimistic lock
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "pg.update_form.verify")
	}
	if n < 1 {
		if _, err := s.GetForm(ctx, form.ID); errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return store.ErrConflict
	}
	form.Version++
	return nil
}

func (s *Store) DeleteForm(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM form WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "pg.delete_form")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "pg.delete_form.verify")
	}
	if n < 1 {
		return store.ErrNotFound
	}
	return nil
}

const submissionColumns = `
	s.id, s.form_id, s.matricule, s.answers,
	s.filiere_id, s.filiere_name, s.mention,
	s.filiere_id_2, s.filiere_name_2, s.mention_2,
	s.email, s.nom, s.prenom,
	s.status, s.transitions, s.submitted_at, s.created_at, s.updated_at`

func (s *Store) GetSubmissions(ctx context.Context, filter store.SubmissionFilter) ([]model.Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+submissionColumns+`
		FROM submission s
		WHERE ($1 = '' OR s.form_id = $1)
			AND ($2 = '' OR s.status = $2)
		ORDER BY s.submitted_at`,
		filter.FormID, string(filter.Status),
	)
	if err != nil {
		return nil, errors.Wrap(err, "pg.get_submissions")
	}
	defer rows.Close()

	subs := []model.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, errors.Wrap(err, "pg.get_submissions.scan")
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *Store) GetSubmission(ctx context.Context, id string) (model.Submission, error) {
	return s.getSubmissionWhere(ctx, `s.id = $1`, id)
}

func (s *Store) GetSubmissionByMatricule(ctx context.Context, matricule string) (model.Submission, error) {
	return s.getSubmissionWhere(ctx, `s.matricule = $1`, matricule)
}

func (s *Store) getSubmissionWhere(ctx context.Context, where string, arg any) (model.Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+submissionColumns+`
		FROM submission s
		WHERE `+where,
		arg,
	)
	if err != nil {
		return model.Submission{}, errors.Wrap(err, "pg.get_submission")
	}
	defer rows.Close()

	if !rows.Next() {
		return model.Submission{}, store.ErrNotFound
	}
	sub, err := scanSubmission(rows)
	if err != nil {
		return model.Submission{}, errors.Wrap(err, "pg.get_submission.scan")
	}
	return sub, nil
}

func (s *Store) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	answers, transitions, err := marshalSubmissionJSON(sub)
	if err != nil {
		return errors.Wrap(err, "pg.insert_submission.marshal")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO submission (id, form_id, matricule, answers,
			filiere_id, filiere_name, mention,
			filiere_id_2, filiere_name_2, mention_2,
			email, nom, prenom,
			status, transitions, submitted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18)`,
		sub.ID, sub.FormID, sub.Matricule, answers,
		sub.FiliereID, sub.FiliereName, sub.Mention,
		sub.FiliereID2, sub.FiliereName2, sub.Mention2,
		sub.Email, sub.Nom, sub.Prenom,
		sub.Status, transitions, sub.SubmittedAt, sub.CreatedAt, sub.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return errors.Wrap(err, "pg.insert_submission")
}

func (s *Store) UpdateSubmissionStatus(ctx context.Context, id string, to model.SubmissionStatus, by string) (model.Submission, error) {
	sub, err := s.GetSubmission(ctx, id)
	if err != nil {
		return model.Submission{}, err
	}
	sub.Transition(to, by, time.Now().UTC())

	transitions, err := json.Marshal(sub.Transitions)
	if err != nil {
		return model.Submission{}, errors.Wrap(err, "pg.update_submission.marshal")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE submission
		SET status = $1,
			transitions = $2,
			updated_at = $3
		WHERE id = $4`,
		sub.Status, transitions, sub.UpdatedAt, id,
	)
	if err != nil {
		return model.Submission{}, errors.Wrap(err, "pg.update_submission")
	}
	if n, err := res.RowsAffected(); err == nil && n < 1 {
		return model.Submission{}, store.ErrNotFound
	}
	return sub, nil
}

func (s *Store) DeleteSubmission(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM submission WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "pg.delete_submission")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "pg.delete_submission.verify")
	}
	if n < 1 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CountSubmissions(ctx context.Context, formID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM submission WHERE form_id = $1`, formID,
	).Scan(&n)
	return n, errors.Wrap(err, "pg.count_submissions")
}

func (s *Store) AdminPasswordHash(ctx context.Context, username string) ([]byte, error) {
	var hash []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT password_hash FROM admin_account WHERE username = $1`, username,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return hash, errors.Wrap(err, "pg.admin_hash")
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func marshalFormJSON(form *model.Form) (fields, filieres []byte, err error) {
	if fields, err = json.Marshal(form.Fields); err != nil {
		return
	}
	filieres, err = json.Marshal(form.Filieres)
	return
}

func marshalSubmissionJSON(sub *model.Submission) (answers, transitions []byte, err error) {
	if answers, err = json.Marshal(sub.Answers); err != nil {
		return
	}
	transitions, err = json.Marshal(sub.Transitions)
	return
}

func scanForm(rows *sql.Rows, withCount bool) (model.Form, error) {
	form := model.Form{}
	var fields, filieres []byte

	dest := []any{
		&form.ID, &form.Version, &form.Title, &form.Description,
		&fields, &filieres,
		&form.Status, &form.CreatedBy, &form.CreatedAt, &form.UpdatedAt,
	}
	if withCount {
		dest = append(dest, &form.SubmissionsCount)
	}
	if err := rows.Scan(dest...); err != nil {
		return form, err
	}

	if err := json.Unmarshal(fields, &form.Fields); err != nil {
		return form, err
	}
	err := json.Unmarshal(filieres, &form.Filieres)
	return form, err
}

func scanSubmission(rows *sql.Rows) (model.Submission, error) {
	sub := model.Submission{}
	var answers, transitions []byte

	err := rows.Scan(
		&sub.ID, &sub.FormID, &sub.Matricule, &answers,
		&sub.FiliereID, &sub.FiliereName, &sub.Mention,
		&sub.FiliereID2, &sub.FiliereName2, &sub.Mention2,
		&sub.Email, &sub.Nom, &sub.Prenom,
		&sub.Status, &transitions, &sub.SubmittedAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return sub, err
	}

	if err = json.Unmarshal(answers, &sub.Answers); err != nil {
		return sub, err
	}
	err = json.Unmarshal(transitions, &sub.Transitions)
	return sub, err
}
