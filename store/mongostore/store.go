// Package mongostore implements the Store contract on a MongoDB document
// backend. Forms and submissions are stored as whole documents; timestamps
// cross the boundary as UTC so their ISO-8601 rendering is stable.
package mongostore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/istm-portal/backend/model"
	"github.com/istm-portal/backend/store"
)

const (
	collForms       = "forms"
	collSubmissions = "submissions"
	collAdmins      = "admin_accounts"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ store.Store = (*Store)(nil)

// Open connects and ensures the indexes the contract relies on, notably the
// unique (formId, email, nom, prenom) registration guard.
func Open(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "mongo.connect")
	}
	if err = client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, errors.Wrap(err, "mongo.ping")
	}

	s := &Store{client: client, db: client.Database(dbName)}
	if err = s.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, errors.Wrap(err, "mongo.indexes")
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	subs := s.db.Collection(collSubmissions)
	_, err := subs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "formId", Value: 1},
				{Key: "email", Value: 1},
				{Key: "nom", Value: 1},
				{Key: "prenom", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "matricule", Value: 1}}},
	})
	return err
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Database exposes the raw handle for the one-shot migration CLI.
func (s *Store) Database() *mongo.Database {
	return s.db
}

func (s *Store) GetForms(ctx context.Context) ([]model.Form, error) {
	cur, err := s.db.Collection(collForms).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "mongo.get_forms")
	}

	forms := []model.Form{}
	if err = cur.All(ctx, &forms); err != nil {
		return nil, errors.Wrap(err, "mongo.get_forms.decode")
	}
	for i := range forms {
		normalizeFormTimes(&forms[i])
		n, err := s.CountSubmissions(ctx, forms[i].ID)
		if err != nil {
			return nil, err
		}
		forms[i].SubmissionsCount = n
	}
	return forms, nil
}

func (s *Store) GetForm(ctx context.Context, id string) (model.Form, error) {
	form := model.Form{}
	err := s.db.Collection(collForms).FindOne(ctx, bson.M{"_id": id}).Decode(&form)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Form{}, store.ErrNotFound
	}
	if err != nil {
		return model.Form{}, errors.Wrap(err, "mongo.get_form")
	}
	normalizeFormTimes(&form)

	form.SubmissionsCount, err = s.CountSubmissions(ctx, id)
	return form, err
}

func (s *Store) CreateForm(ctx context.Context, form *model.Form) error {
	_, err := s.db.Collection(collForms).InsertOne(ctx, form)
	return errors.Wrap(err, "mongo.insert_form")
}

func (s *Store) UpdateForm(ctx context.Context, form *model.Form) error {
	res, err := s.db.Collection(collForms).UpdateOne(ctx,
		bson.M{"_id": form.ID, "version": form.Version},
		bson.M{
			"$set": bson.M{
				"title":       form.Title,
				"description": form.Description,
				"fields":      form.Fields,
				"filieres":    form.Filieres,
				"status":      form.Status,
				"updatedAt":   time.Now().UTC(),
			},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return errors.Wrap(err, "mongo.update_form")
	}
	// optimistic lock: no match means gone or stale version
	if res.MatchedCount < 1 {
		if _, err := s.GetForm(ctx, form.ID); errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return store.ErrConflict
	}
	form.Version++
	return nil
}

func (s *Store) DeleteForm(ctx context.Context, id string) error {
	res, err := s.db.Collection(collForms).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "mongo.delete_form")
	}
	if res.DeletedCount < 1 {
		return store.ErrNotFound
	}
	// cascade, same as the relational schema
	_, err = s.db.Collection(collSubmissions).DeleteMany(ctx, bson.M{"formId": id})
	return errors.Wrap(err, "mongo.delete_form.submissions")
}

func (s *Store) GetSubmissions(ctx context.Context, filter store.SubmissionFilter) ([]model.Submission, error) {
	query := bson.M{}
	if filter.FormID != "" {
		query["formId"] = filter.FormID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	cur, err := s.db.Collection(collSubmissions).Find(ctx, query,
		options.Find().SetSort(bson.D{{Key: "submittedAt", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "mongo.get_submissions")
	}

	subs := []model.Submission{}
	if err = cur.All(ctx, &subs); err != nil {
		return nil, errors.Wrap(err, "mongo.get_submissions.decode")
	}
	for i := range subs {
		normalizeSubmissionTimes(&subs[i])
	}
	return subs, nil
}

func (s *Store) GetSubmission(ctx context.Context, id string) (model.Submission, error) {
	return s.getSubmission(ctx, bson.M{"_id": id})
}

func (s *Store) GetSubmissionByMatricule(ctx context.Context, matricule string) (model.Submission, error) {
	return s.getSubmission(ctx, bson.M{"matricule": matricule})
}

func (s *Store) getSubmission(ctx context.Context, query bson.M) (model.Submission, error) {
	sub := model.Submission{}
	err := s.db.Collection(collSubmissions).FindOne(ctx, query).Decode(&sub)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Submission{}, store.ErrNotFound
	}
	if err != nil {
		return model.Submission{}, errors.Wrap(err, "mongo.get_submission")
	}
	normalizeSubmissionTimes(&sub)
	return sub, nil
}

func (s *Store) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	_, err := s.db.Collection(collSubmissions).InsertOne(ctx, sub)
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	return errors.Wrap(err, "mongo.insert_submission")
}

func (s *Store) UpdateSubmissionStatus(ctx context.Context, id string, to model.SubmissionStatus, by string) (model.Submission, error) {
	sub, err := s.GetSubmission(ctx, id)
	if err != nil {
		return model.Submission{}, err
	}
	sub.Transition(to, by, time.Now().UTC())

	_, err = s.db.Collection(collSubmissions).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"status":      sub.Status,
			"transitions": sub.Transitions,
			"updatedAt":   sub.UpdatedAt,
		}},
	)
	if err != nil {
		return model.Submission{}, errors.Wrap(err, "mongo.update_submission")
	}
	return sub, nil
}

func (s *Store) DeleteSubmission(ctx context.Context, id string) error {
	res, err := s.db.Collection(collSubmissions).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "mongo.delete_submission")
	}
	if res.DeletedCount < 1 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CountSubmissions(ctx context.Context, formID string) (int, error) {
	n, err := s.db.Collection(collSubmissions).CountDocuments(ctx, bson.M{"formId": formID})
	return int(n), errors.Wrap(err, "mongo.count_submissions")
}

func (s *Store) AdminPasswordHash(ctx context.Context, username string) ([]byte, error) {
	var doc struct {
		PasswordHash []byte `bson:"passwordHash"`
	}
	err := s.db.Collection(collAdmins).FindOne(ctx, bson.M{"_id": username}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	return doc.PasswordHash, errors.Wrap(err, "mongo.admin_hash")
}

// BSON datetimes come back in server-local form; pin every timestamp to UTC
// so ISO-8601 rendering does not depend on where the process runs.
func normalizeFormTimes(f *model.Form) {
	f.CreatedAt = f.CreatedAt.UTC()
	f.UpdatedAt = f.UpdatedAt.UTC()
}

func normalizeSubmissionTimes(s *model.Submission) {
	s.SubmittedAt = s.SubmittedAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	for i := range s.Transitions {
		s.Transitions[i].At = s.Transitions[i].At.UTC()
	}
}
