package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/istm-portal/backend/model"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestField_Required(t *testing.T) {
	f := model.Field{ID: "f1", Type: model.FieldText, Label: "Nom", Required: true}

	assert.NotEmpty(t, Field(f, nil))
	assert.NotEmpty(t, Field(f, ""))
	assert.NotEmpty(t, Field(f, "   "))
	assert.Empty(t, Field(f, "Kabongo"))

	f.Required = false
	assert.Empty(t, Field(f, ""))
	assert.Empty(t, Field(f, nil))
}

func TestField_Email(t *testing.T) {
	f := model.Field{ID: "f1", Type: model.FieldEmail, Label: "Email", Required: true}

	assert.Empty(t, Field(f, "a@b.co"))
	assert.NotEmpty(t, Field(f, "a@b"))
	assert.NotEmpty(t, Field(f, "a-b.co"))
	assert.NotEmpty(t, Field(f, "a b@c.co"))
}

func TestField_Tel(t *testing.T) {
	f := model.Field{ID: "f1", Type: model.FieldTel, Label: "Téléphone", Required: true}

	assert.Empty(t, Field(f, "+243 812 345 678"))
	assert.Empty(t, Field(f, "(0812) 345-678"))
	assert.NotEmpty(t, Field(f, "081234"))        // too few digits
	assert.NotEmpty(t, Field(f, "call me maybe")) // letters
}

func TestField_Number(t *testing.T) {
	f := model.Field{
		ID: "f1", Type: model.FieldNumber, Label: "Pourcentage", Required: true,
		Min: floatPtr(0), Max: floatPtr(100),
	}

	assert.Empty(t, Field(f, "50"))
	assert.NotEmpty(t, Field(f, "150"))
	assert.NotEmpty(t, Field(f, "-1"))
	assert.NotEmpty(t, Field(f, "abc"))
	// JSON numbers decode as float64
	assert.Empty(t, Field(f, float64(99.5)))
	assert.NotEmpty(t, Field(f, float64(101)))
}

func TestField_Date(t *testing.T) {
	f := model.Field{ID: "f1", Type: model.FieldDate, Label: "Date de début", Required: true}

	assert.Empty(t, Field(f, "2005-09-14"))
	assert.NotEmpty(t, Field(f, "2005-13-40"))
	assert.NotEmpty(t, Field(f, "pas une date"))
}

func TestField_BirthDateNotInFuture(t *testing.T) {
	f := model.Field{ID: "f1", Type: model.FieldDate, Label: "Date de naissance", Required: true}

	future := time.Now().AddDate(1, 0, 0).Format("2006-01-02")
	assert.NotEmpty(t, Field(f, future))
	assert.Empty(t, Field(f, "1998-03-21"))

	// only birth-date labels get the future check
	plain := model.Field{ID: "f2", Type: model.FieldDate, Label: "Date de rentrée", Required: true}
	assert.Empty(t, Field(plain, future))
}

func TestField_URL(t *testing.T) {
	f := model.Field{ID: "f1", Type: model.FieldURL, Label: "Site", Required: true}

	assert.Empty(t, Field(f, "https://istm.example.org/page"))
	assert.NotEmpty(t, Field(f, "istm.example.org"))
	assert.NotEmpty(t, Field(f, "/relative/path"))
}

func TestField_TextConstraints(t *testing.T) {
	f := model.Field{
		ID: "f1", Type: model.FieldText, Label: "Code", Required: true,
		MinLength: intPtr(3), MaxLength: intPtr(5), Pattern: `^[A-Z]+$`,
	}

	assert.Empty(t, Field(f, "ABC"))
	assert.NotEmpty(t, Field(f, "AB"))
	assert.NotEmpty(t, Field(f, "ABCDEF"))
	assert.NotEmpty(t, Field(f, "abc"))
}

func TestField_BadPatternNeverBlocks(t *testing.T) {
	f := model.Field{ID: "f1", Type: model.FieldText, Label: "Code", Pattern: `([`}
	assert.Empty(t, Field(f, "whatever"))
}

func TestField_Choices(t *testing.T) {
	sel := model.Field{
		ID: "f1", Type: model.FieldSelect, Label: "Sexe", Required: true,
		Options: []string{"M", "F"},
	}
	assert.Empty(t, Field(sel, "M"))
	assert.NotEmpty(t, Field(sel, "X"))

	chk := model.Field{
		ID: "f2", Type: model.FieldCheckbox, Label: "Langues",
		Options: []string{"Français", "Anglais"},
	}
	assert.Empty(t, Field(chk, []any{"Français"}))
	assert.NotEmpty(t, Field(chk, []any{"Swahili"}))
}

func TestField_FilePresenceOnly(t *testing.T) {
	f := model.Field{ID: "f1", Type: model.FieldFile, Label: "Diplôme", Required: true}

	assert.NotEmpty(t, Field(f, ""))
	assert.Empty(t, Field(f, "uploads/diplome.pdf"))
}

func TestStep_CollectsOnlyVisibleFields(t *testing.T) {
	visible := []model.Field{
		{ID: "nom", Type: model.FieldText, Label: "Nom", Required: true, Order: 1},
		{ID: "email", Type: model.FieldEmail, Label: "Email", Required: true, Order: 2},
	}
	answers := map[string]any{"email": "a@b"}

	errs := Step(visible, answers)
	assert.Len(t, errs, 2)
	assert.Contains(t, errs, "nom")
	assert.Contains(t, errs, "email")

	answers["nom"] = "Kabongo"
	answers["email"] = "a@b.co"
	assert.Empty(t, Step(visible, answers))
}

func testForm() *model.Form {
	return &model.Form{
		ID:     "form-1",
		Status: model.FormPublished,
		Fields: []model.Field{
			{ID: "nom", Type: model.FieldText, Label: "Nom", Required: true, Order: 1},
		},
		Filieres: []model.Filiere{
			{ID: "fil-si", Name: "Soins Infirmiers", Mentions: []string{"Accoucheuse", "Hospitalière"}},
			{ID: "fil-bm", Name: "Biologie Médicale", Mentions: []string{"Laboratoire"}},
		},
	}
}

func TestFinal_FiliereGating(t *testing.T) {
	form := testForm()

	t.Run("missing first filière blocks", func(t *testing.T) {
		sub := &model.Submission{Answers: map[string]any{"nom": "Kabongo"}}
		errs := Final(form, sub)
		assert.Contains(t, errs, "filiere")
	})

	t.Run("missing mention blocks", func(t *testing.T) {
		sub := &model.Submission{
			Answers:   map[string]any{"nom": "Kabongo"},
			FiliereID: "fil-si",
		}
		errs := Final(form, sub)
		assert.Contains(t, errs, "mention")
	})

	t.Run("both choices set permits", func(t *testing.T) {
		sub := &model.Submission{
			Answers:    map[string]any{"nom": "Kabongo"},
			FiliereID:  "fil-si",
			Mention:    "Accoucheuse",
			FiliereID2: "fil-bm",
			Mention2:   "Laboratoire",
		}
		assert.Empty(t, Final(form, sub))
	})

	t.Run("second choice optional", func(t *testing.T) {
		sub := &model.Submission{
			Answers:   map[string]any{"nom": "Kabongo"},
			FiliereID: "fil-si",
			Mention:   "Hospitalière",
		}
		assert.Empty(t, Final(form, sub))
	})

	t.Run("same filière twice blocks", func(t *testing.T) {
		sub := &model.Submission{
			Answers:    map[string]any{"nom": "Kabongo"},
			FiliereID:  "fil-si",
			Mention:    "Accoucheuse",
			FiliereID2: "fil-si",
			Mention2:   "Hospitalière",
		}
		errs := Final(form, sub)
		assert.Contains(t, errs, "filiere2")
	})

	t.Run("mention must belong to the filière", func(t *testing.T) {
		sub := &model.Submission{
			Answers:   map[string]any{"nom": "Kabongo"},
			FiliereID: "fil-bm",
			Mention:   "Accoucheuse",
		}
		errs := Final(form, sub)
		assert.Contains(t, errs, "mention")
	})
}
