// Package migration copies every collection of the document backend into
// the relational backend. It is a one-shot tool: records are shaped into
// flat rows (ISO-8601 timestamps, explicit defaults for missing fields,
// nested documents preserved as JSON) and bulk-inserted in batches. A
// failing batch is logged and skipped; the remaining batches still commit.
package migration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/istm-portal/backend/log"
)

const DefaultBatchSize = 50

type Options struct {
	BatchSize int
}

type CollectionReport struct {
	Collection    string
	Read          int
	Inserted      int
	FailedBatches int
}

func (r CollectionReport) String() string {
	return fmt.Sprintf("%s: %d read, %d inserted, %d failed batch(es)",
		r.Collection, r.Read, r.Inserted, r.FailedBatches)
}

type Report struct {
	Forms       CollectionReport
	Submissions CollectionReport
}

// Partial reports whether some batches were lost along the way.
func (r Report) Partial() bool {
	return r.Forms.FailedBatches > 0 || r.Submissions.FailedBatches > 0
}

// Run copies forms first (submissions reference them), then submissions.
func Run(ctx context.Context, src *mongo.Database, dst *sql.DB, opts Options) (Report, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	report := Report{}

	forms, err := readAll(ctx, src, "forms")
	if err != nil {
		return report, errors.Wrap(err, "migration.read_forms")
	}
	formRows := make([]row, 0, len(forms))
	for _, doc := range forms {
		formRows = append(formRows, ShapeForm(doc))
	}
	report.Forms = insertBatches(ctx, dst, "form", formColumns, formRows, opts.BatchSize)
	report.Forms.Collection = "forms"
	report.Forms.Read = len(forms)

	subs, err := readAll(ctx, src, "submissions")
	if err != nil {
		return report, errors.Wrap(err, "migration.read_submissions")
	}
	subRows := make([]row, 0, len(subs))
	for _, doc := range subs {
		subRows = append(subRows, ShapeSubmission(doc))
	}
	report.Submissions = insertBatches(ctx, dst, "submission", submissionColumns, subRows, opts.BatchSize)
	report.Submissions.Collection = "submissions"
	report.Submissions.Read = len(subs)

	return report, nil
}

func readAll(ctx context.Context, src *mongo.Database, collection string) ([]bson.M, error) {
	cur, err := src.Collection(collection).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	docs := []bson.M{}
	err = cur.All(ctx, &docs)
	return docs, err
}

// row is one shaped relational record, positionally aligned with the
// target column list.
type row []any

var formColumns = []string{
	"id", "version", "title", "description", "fields", "filieres",
	"status", "created_by", "created_at", "updated_at",
}

var submissionColumns = []string{
	"id", "form_id", "matricule", "answers",
	"filiere_id", "filiere_name", "mention",
	"filiere_id_2", "filiere_name_2", "mention_2",
	"email", "nom", "prenom",
	"status", "transitions", "submitted_at", "created_at", "updated_at",
}

// ShapeForm flattens a form document. Missing fields get explicit
// defaults; the nested field/filière arrays stay JSON.
func ShapeForm(doc bson.M) row {
	return row{
		str(doc, "_id", ""),
		integer(doc, "version", 0),
		str(doc, "title", ""),
		str(doc, "description", ""),
		jsonStr(doc, "fields", "[]"),
		jsonStr(doc, "filieres", "[]"),
		str(doc, "status", "draft"),
		str(doc, "createdBy", ""),
		isoTime(doc, "createdAt"),
		isoTime(doc, "updatedAt"),
	}
}

// ShapeSubmission flattens a submission document.
func ShapeSubmission(doc bson.M) row {
	return row{
		str(doc, "_id", ""),
		str(doc, "formId", ""),
		str(doc, "matricule", ""),
		jsonStr(doc, "answers", "{}"),
		str(doc, "filiereId", ""),
		str(doc, "filiereName", ""),
		str(doc, "mention", ""),
		str(doc, "filiereId2", ""),
		str(doc, "filiereName2", ""),
		str(doc, "mention2", ""),
		str(doc, "email", ""),
		str(doc, "nom", ""),
		str(doc, "prenom", ""),
		str(doc, "status", "pending"),
		jsonStr(doc, "transitions", "[]"),
		isoTime(doc, "submittedAt"),
		isoTime(doc, "createdAt"),
		isoTime(doc, "updatedAt"),
	}
}

// insertBatches issues one multi-row INSERT per batch. A failed batch is
// logged and skipped so later batches still commit.
func insertBatches(ctx context.Context, dst *sql.DB, table string, columns []string, rows []row, batchSize int) CollectionReport {
	report := CollectionReport{}

	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		query, args := buildInsert(table, columns, batch)
		if _, err := dst.ExecContext(ctx, query, args...); err != nil {
			report.FailedBatches++
			log.Errorf("migration.insert_batch: %s rows %d-%d: %s", table, start, end-1, err)
			continue
		}
		report.Inserted += len(batch)
	}
	return report
}

func buildInsert(table string, columns []string, batch []row) (string, []any) {
	var q strings.Builder
	fmt.Fprintf(&q, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))

	args := make([]any, 0, len(batch)*len(columns))
	for i, r := range batch {
		if i > 0 {
			q.WriteString(", ")
		}
		q.WriteByte('(')
		for j := range columns {
			if j > 0 {
				q.WriteString(", ")
			}
			fmt.Fprintf(&q, "$%d", i*len(columns)+j+1)
		}
		q.WriteByte(')')
		args = append(args, r...)
	}
	return q.String(), args
}

func str(doc bson.M, key, fallback string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return fallback
}

func integer(doc bson.M, key string, fallback int) int {
	switch v := doc[key].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

// jsonStr re-encodes a nested document or array as a JSON string, keeping
// structure the relational schema stores as jsonb.
func jsonStr(doc bson.M, key, fallback string) string {
	v, ok := doc[key]
	if !ok || v == nil {
		return fallback
	}
	b, err := json.Marshal(normalizeJSON(v))
	if err != nil {
		return fallback
	}
	return string(b)
}

// isoTime converts a BSON datetime to an ISO-8601 UTC string. Documents
// without the field get the zero instant rather than a NULL.
func isoTime(doc bson.M, key string) string {
	switch v := doc[key].(type) {
	case primitive.DateTime:
		return v.Time().UTC().Format(time.RFC3339)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case string:
		return v
	}
	return time.Time{}.UTC().Format(time.RFC3339)
}

// normalizeJSON rewrites BSON-specific values so encoding/json can handle
// the whole tree.
func normalizeJSON(v any) any {
	switch v := v.(type) {
	case primitive.DateTime:
		return v.Time().UTC().Format(time.RFC3339)
	case primitive.ObjectID:
		return v.Hex()
	case primitive.A:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalizeJSON(e)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = normalizeJSON(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = normalizeJSON(e)
		}
		return out
	default:
		return v
	}
}
