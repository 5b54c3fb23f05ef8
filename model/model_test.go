package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleForm() Form {
	return Form{
		ID:     "form-1",
		Title:  "Inscription 2026",
		Status: FormPublished,
		Fields: []Field{
			{ID: "f-email", Type: FieldEmail, Label: "Email", Required: true, Order: 3},
			{ID: "f-nom", Type: FieldText, Label: "Nom", Required: true, Order: 1},
			{ID: "f-prenom", Type: FieldText, Label: "Prénom", Required: true, Order: 2},
		},
		Filieres: []Filiere{
			{ID: "fil-1", Name: "Soins Infirmiers", Mentions: []string{"Accoucheuse"}},
		},
	}
}

func TestForm_SortedFields(t *testing.T) {
	form := sampleForm()

	sorted := form.SortedFields()
	require.Len(t, sorted, 3)
	assert.Equal(t, "f-nom", sorted[0].ID)
	assert.Equal(t, "f-prenom", sorted[1].ID)
	assert.Equal(t, "f-email", sorted[2].ID)

	// original slice untouched
	assert.Equal(t, "f-email", form.Fields[0].ID)
}

func TestForm_Duplicate(t *testing.T) {
	form := sampleForm()
	now := time.Now()

	dup := form.Duplicate(now)

	assert.NotEqual(t, form.ID, dup.ID)
	assert.Equal(t, FormDraft, dup.Status)
	assert.Equal(t, 0, dup.Version)
	assert.Equal(t, "Inscription 2026 (copie)", dup.Title)

	require.Len(t, dup.Fields, 3)
	for i := range dup.Fields {
		assert.NotEqual(t, form.Fields[i].ID, dup.Fields[i].ID)
		assert.Equal(t, form.Fields[i].Label, dup.Fields[i].Label)
	}
	require.Len(t, dup.Filieres, 1)
	assert.NotEqual(t, form.Filieres[0].ID, dup.Filieres[0].ID)
	assert.Equal(t, form.Filieres[0].Mentions, dup.Filieres[0].Mentions)
}

func TestSubmission_AnswerByLabel_IgnoresCaseAndAccents(t *testing.T) {
	form := sampleForm()
	sub := Submission{Answers: map[string]any{
		"f-prenom": "Divine",
	}}

	assert.Equal(t, "Divine", sub.AnswerByLabel(&form, "prenom"))
	assert.Equal(t, "Divine", sub.AnswerByLabel(&form, "Prénom"))
	assert.Equal(t, "", sub.AnswerByLabel(&form, "postnom"))
}

func TestSubmission_ExtractIdentity(t *testing.T) {
	form := sampleForm()
	sub := Submission{Answers: map[string]any{
		"f-email":  "  Divine.K@Example.org ",
		"f-nom":    " Kabongo ",
		"f-prenom": "Divine",
	}}

	sub.ExtractIdentity(&form)

	assert.Equal(t, "divine.k@example.org", sub.Email)
	assert.Equal(t, "Kabongo", sub.Nom)
	assert.Equal(t, "Divine", sub.Prenom)
}

func TestSubmission_TransitionLog(t *testing.T) {
	now := time.Now()
	sub := Submission{Status: StatusPending}

	sub.Transition(StatusApproved, "admin", now)
	sub.Transition(StatusRejected, "admin2", now.Add(time.Minute))

	assert.Equal(t, StatusRejected, sub.Status)
	require.Len(t, sub.Transitions, 2)
	assert.Equal(t, StatusPending, sub.Transitions[0].From)
	assert.Equal(t, StatusApproved, sub.Transitions[0].To)
	assert.Equal(t, "admin", sub.Transitions[0].By)
	assert.Equal(t, StatusApproved, sub.Transitions[1].From)
	assert.Equal(t, StatusRejected, sub.Transitions[1].To)
}

func TestAnswerString(t *testing.T) {
	assert.Equal(t, "", AnswerString(nil))
	assert.Equal(t, "texte", AnswerString("texte"))
	assert.Equal(t, "oui", AnswerString(true))
	assert.Equal(t, "non", AnswerString(false))
	assert.Equal(t, "42", AnswerString(float64(42)))
	assert.Equal(t, "42.5", AnswerString(42.5))
	assert.Equal(t, "a, b", AnswerString([]any{"a", "b"}))
}
