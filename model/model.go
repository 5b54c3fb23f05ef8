package model

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid"
)

type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldTel      FieldType = "tel"
	FieldNumber   FieldType = "number"
	FieldDate     FieldType = "date"
	FieldTextarea FieldType = "textarea"
	FieldSelect   FieldType = "select"
	FieldRadio    FieldType = "radio"
	FieldCheckbox FieldType = "checkbox"
	FieldFile     FieldType = "file"
	FieldURL      FieldType = "url"
)

// HasOptions reports whether the type carries an options list.
func (t FieldType) HasOptions() bool {
	switch t {
	case FieldSelect, FieldRadio, FieldCheckbox:
		return true
	}
	return false
}

// Field is the declarative schema of one form input.
type Field struct {
	ID          string    `json:"id" bson:"id"`
	Type        FieldType `json:"type" bson:"type"`
	Label       string    `json:"label" bson:"label"`
	Placeholder string    `json:"placeholder,omitempty" bson:"placeholder,omitempty"`
	Required    bool      `json:"required" bson:"required"`
	Options     []string  `json:"options,omitempty" bson:"options,omitempty"`
	Order       int       `json:"order" bson:"order"`
	Min         *float64  `json:"min,omitempty" bson:"min,omitempty"`
	Max         *float64  `json:"max,omitempty" bson:"max,omitempty"`
	MinLength   *int      `json:"minLength,omitempty" bson:"minLength,omitempty"`
	MaxLength   *int      `json:"maxLength,omitempty" bson:"maxLength,omitempty"`
	Pattern     string    `json:"pattern,omitempty" bson:"pattern,omitempty"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
}

// Filiere is an academic program offering an ordered list of mentions
// (specializations) a candidate picks from during registration.
type Filiere struct {
	ID       string   `json:"id" bson:"id"`
	Name     string   `json:"name" bson:"name"`
	Mentions []string `json:"mentions" bson:"mentions"`
}

type FormStatus string

const (
	FormDraft     FormStatus = "draft"
	FormPublished FormStatus = "published"
	FormArchived  FormStatus = "archived"
)

// Form is an administrator-authored registration form: an ordered set of
// field schemas plus the filière catalog offered to candidates.
type Form struct {
	ID          string     `json:"id" bson:"_id"`
	Version     int        `json:"version" bson:"version"`
	Title       string     `json:"title" bson:"title"`
	Description string     `json:"description" bson:"description"`
	Fields      []Field    `json:"fields" bson:"fields"`
	Filieres    []Filiere  `json:"filieres" bson:"filieres"`
	Status      FormStatus `json:"status" bson:"status"`
	CreatedBy   string     `json:"createdBy,omitempty" bson:"createdBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt" bson:"updatedAt"`

	// Derived, recomputed from live submissions. Never authoritative.
	SubmissionsCount int `json:"submissionsCount" bson:"-"`
}

// SortedFields returns the fields in display order. Order values define a
// total order used for wizard step pagination.
func (f *Form) SortedFields() []Field {
	fields := make([]Field, len(f.Fields))
	copy(fields, f.Fields)
	sort.SliceStable(fields, func(i, j int) bool {
		return fields[i].Order < fields[j].Order
	})
	return fields
}

func (f *Form) FieldByID(id string) (Field, bool) {
	for _, fld := range f.Fields {
		if fld.ID == id {
			return fld, true
		}
	}
	return Field{}, false
}

func (f *Form) FiliereByID(id string) (Filiere, bool) {
	for _, fil := range f.Filieres {
		if fil.ID == id {
			return fil, true
		}
	}
	return Filiere{}, false
}

// Duplicate copies the form as a new draft with fresh ids for the form and
// every nested field and filière.
func (f *Form) Duplicate(now time.Time) Form {
	dup := *f
	dup.ID = NewID()
	dup.Version = 0
	dup.Title = f.Title + " (copie)"
	dup.Status = FormDraft
	dup.CreatedAt = now
	dup.UpdatedAt = now
	dup.SubmissionsCount = 0

	dup.Fields = make([]Field, len(f.Fields))
	for i, fld := range f.Fields {
		fld.ID = NewID()
		dup.Fields[i] = fld
	}
	dup.Filieres = make([]Filiere, len(f.Filieres))
	for i, fil := range f.Filieres {
		fil.ID = NewID()
		fil.Mentions = append([]string(nil), fil.Mentions...)
		dup.Filieres[i] = fil
	}
	return dup
}

type SubmissionStatus string

const (
	StatusPending  SubmissionStatus = "pending"
	StatusApproved SubmissionStatus = "approved"
	StatusRejected SubmissionStatus = "rejected"
)

func (s SubmissionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Transition is one entry of the append-only adjudication log.
type Transition struct {
	From SubmissionStatus `json:"from" bson:"from"`
	To   SubmissionStatus `json:"to" bson:"to"`
	By   string           `json:"by" bson:"by"`
	At   time.Time        `json:"at" bson:"at"`
}

// Submission is one candidate's completed registration.
// Answers are keyed by field id.
type Submission struct {
	ID        string         `json:"id" bson:"_id"`
	FormID    string         `json:"formId" bson:"formId"`
	Matricule string         `json:"matricule" bson:"matricule"`
	Answers   map[string]any `json:"answers" bson:"answers"`

	FiliereID    string `json:"filiereId" bson:"filiereId"`
	FiliereName  string `json:"filiereName" bson:"filiereName"`
	Mention      string `json:"mention" bson:"mention"`
	FiliereID2   string `json:"filiereId2,omitempty" bson:"filiereId2,omitempty"`
	FiliereName2 string `json:"filiereName2,omitempty" bson:"filiereName2,omitempty"`
	Mention2     string `json:"mention2,omitempty" bson:"mention2,omitempty"`

	// Identity triple extracted from the answers at submission time.
	// The storage layer enforces uniqueness on (form, email, nom, prenom).
	Email  string `json:"email" bson:"email"`
	Nom    string `json:"nom" bson:"nom"`
	Prenom string `json:"prenom" bson:"prenom"`

	Status      SubmissionStatus `json:"status" bson:"status"`
	Transitions []Transition     `json:"transitions,omitempty" bson:"transitions,omitempty"`
	SubmittedAt time.Time        `json:"submittedAt" bson:"submittedAt"`
	CreatedAt   time.Time        `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt" bson:"updatedAt"`
}

// Answer returns the string form of the answer for a field id.
func (s *Submission) Answer(fieldID string) string {
	return AnswerString(s.Answers[fieldID])
}

// AnswerByLabel resolves an answer through the form's fields by label.
// Matching ignores case and accents, so "Prénom" finds "prenom".
func (s *Submission) AnswerByLabel(form *Form, label string) string {
	want := normalizeLabel(label)
	for _, f := range form.Fields {
		if normalizeLabel(f.Label) == want {
			return s.Answer(f.ID)
		}
	}
	return ""
}

// ExtractIdentity fills Email/Nom/Prenom from the answers. Fields the form
// does not carry leave the value empty.
func (s *Submission) ExtractIdentity(form *Form) {
	s.Email = strings.ToLower(strings.TrimSpace(s.AnswerByLabel(form, "email")))
	s.Nom = strings.TrimSpace(s.AnswerByLabel(form, "nom"))
	s.Prenom = strings.TrimSpace(s.AnswerByLabel(form, "prenom"))
}

// Transition appends an adjudication log entry and moves the status. Any
// move between the three states is allowed; the log keeps who/when/from/to.
func (s *Submission) Transition(to SubmissionStatus, by string, at time.Time) {
	s.Transitions = append(s.Transitions, Transition{
		From: s.Status,
		To:   to,
		By:   by,
		At:   at,
	})
	s.Status = to
	s.UpdatedAt = at
}

// AnswerString renders a decoded JSON answer value for display or export.
func AnswerString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "oui"
		}
		return "non"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = AnswerString(e)
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

func NewID() string {
	id, err := uuid.NewV4()
	if err != nil {
		// exhausted entropy source, not recoverable
		panic(err)
	}
	return id.String()
}

var accentReplacer = strings.NewReplacer(
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"à", "a", "â", "a", "î", "i", "ï", "i",
	"ô", "o", "û", "u", "ù", "u", "ç", "c",
)

func normalizeLabel(label string) string {
	return accentReplacer.Replace(strings.ToLower(strings.TrimSpace(label)))
}
