package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestShapeSubmission(t *testing.T) {
	submitted := time.Date(2026, 2, 11, 8, 30, 0, 0, time.UTC)
	doc := bson.M{
		"_id":       "sub-1",
		"formId":    "form-1",
		"matricule": "ISTM20261234",
		"answers": bson.M{
			"f-nom": "Kabongo",
			"f-doc": bson.M{"nested": primitive.A{"a", "b"}},
		},
		"filiereId":   "fil-1",
		"filiereName": "Soins Infirmiers",
		"mention":     "Accoucheuse",
		"email":       "divine@example.org",
		"nom":         "Kabongo",
		"prenom":      "Divine",
		"status":      "pending",
		"submittedAt": primitive.NewDateTimeFromTime(submitted),
	}

	row := ShapeSubmission(doc)
	require.Len(t, row, len(submissionColumns))

	assert.Equal(t, "sub-1", row[0])
	assert.Equal(t, "form-1", row[1])
	assert.Equal(t, "ISTM20261234", row[2])

	// nested documents survive as JSON
	var answers map[string]any
	require.NoError(t, json.Unmarshal([]byte(row[3].(string)), &answers))
	assert.Equal(t, "Kabongo", answers["f-nom"])
	assert.Equal(t, map[string]any{"nested": []any{"a", "b"}}, answers["f-doc"])

	// BSON datetimes become ISO-8601 UTC strings
	assert.Equal(t, "2026-02-11T08:30:00Z", row[15])
}

func TestShapeSubmission_MissingFieldsGetExplicitDefaults(t *testing.T) {
	row := ShapeSubmission(bson.M{"_id": "sub-2", "formId": "form-1"})

	assert.Equal(t, "", row[2])          // matricule
	assert.Equal(t, "{}", row[3])        // answers
	assert.Equal(t, "", row[4])          // filiere_id
	assert.Equal(t, "pending", row[13])  // status
	assert.Equal(t, "[]", row[14])       // transitions
	assert.Equal(t, "0001-01-01T00:00:00Z", row[15])
}

func TestShapeForm(t *testing.T) {
	created := time.Date(2025, 11, 2, 10, 0, 0, 0, time.UTC)
	doc := bson.M{
		"_id":     "form-1",
		"version": int32(3),
		"title":   "Inscription 2026",
		"fields": primitive.A{
			bson.M{"id": "f-nom", "type": "text", "label": "Nom", "required": true},
		},
		"status":    "published",
		"createdAt": primitive.NewDateTimeFromTime(created),
	}

	row := ShapeForm(doc)
	require.Len(t, row, len(formColumns))
	assert.Equal(t, "form-1", row[0])
	assert.Equal(t, 3, row[1])
	assert.Equal(t, "Inscription 2026", row[2])
	assert.Equal(t, "", row[3]) // description default

	var fields []map[string]any
	require.NoError(t, json.Unmarshal([]byte(row[4].(string)), &fields))
	require.Len(t, fields, 1)
	assert.Equal(t, "Nom", fields[0]["label"])

	assert.Equal(t, "[]", row[5]) // filieres default
	assert.Equal(t, "2025-11-02T10:00:00Z", row[8])
}

func sampleRows(n int) []row {
	rows := make([]row, n)
	for i := range rows {
		r := ShapeSubmission(bson.M{
			"_id":    fmt.Sprintf("sub-%d", i),
			"formId": "form-1",
		})
		rows[i] = r
	}
	return rows
}

func TestInsertBatches_120RowsBatch50(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// 120 rows at batch size 50: 3 insert statements
	mock.ExpectExec("INSERT INTO submission").WillReturnResult(sqlmock.NewResult(0, 50))
	mock.ExpectExec("INSERT INTO submission").WillReturnResult(sqlmock.NewResult(0, 50))
	mock.ExpectExec("INSERT INTO submission").WillReturnResult(sqlmock.NewResult(0, 20))

	report := insertBatches(context.Background(), db, "submission", submissionColumns, sampleRows(120), 50)

	assert.Equal(t, 120, report.Inserted)
	assert.Equal(t, 0, report.FailedBatches)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatches_FailedBatchDoesNotStopTheRest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO submission").WillReturnResult(sqlmock.NewResult(0, 50))
	mock.ExpectExec("INSERT INTO submission").WillReturnError(errors.New("deadlock"))
	mock.ExpectExec("INSERT INTO submission").WillReturnResult(sqlmock.NewResult(0, 20))

	report := insertBatches(context.Background(), db, "submission", submissionColumns, sampleRows(120), 50)

	// the two good batches still commit
	assert.Equal(t, 70, report.Inserted)
	assert.Equal(t, 1, report.FailedBatches)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildInsert(t *testing.T) {
	query, args := buildInsert("form", []string{"a", "b"}, []row{{1, 2}, {3, 4}})

	assert.Equal(t, "INSERT INTO form (a, b) VALUES ($1, $2), ($3, $4)", query)
	assert.Equal(t, []any{1, 2, 3, 4}, args)
}
