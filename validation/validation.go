// Package validation evaluates candidate answers against field schemas.
// Every rule returns a human-readable message in the portal's language;
// an empty string means the value is acceptable. Rules never panic.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/istm-portal/backend/model"
)

var (
	reEmail = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	reTel   = regexp.MustCompile(`^[0-9+()\s.-]+$`)
	reDigit = regexp.MustCompile(`[0-9]`)
)

// Field checks one answer against its schema and returns an error message,
// or "" when the value is valid.
func Field(f model.Field, value any) string {
	if isEmpty(value) {
		if f.Required {
			return "Ce champ est obligatoire"
		}
		return ""
	}

	switch f.Type {
	case model.FieldEmail:
		return email(value)
	case model.FieldTel:
		return tel(value)
	case model.FieldNumber:
		return number(f, value)
	case model.FieldDate:
		return date(f, value)
	case model.FieldURL:
		return absoluteURL(value)
	case model.FieldFile:
		// presence only; content and type are not checked here
		return ""
	case model.FieldSelect, model.FieldRadio:
		return oneOf(f, value)
	case model.FieldCheckbox:
		return checkedOptions(f, value)
	default:
		return text(f, value)
	}
}

// Step validates only the fields shown on one wizard step. The result maps
// field id to message; an empty map means the step may advance.
func Step(fields []model.Field, answers map[string]any) map[string]string {
	errs := map[string]string{}
	for _, f := range fields {
		if msg := Field(f, answers[f.ID]); msg != "" {
			errs[f.ID] = msg
		}
	}
	return errs
}

// Final runs the exhaustive check before a submission is accepted: every
// field of the form plus the filière/mention selections. Filière errors are
// keyed "filiere"/"mention" ("filiere2"/"mention2" for the second choice).
func Final(form *model.Form, sub *model.Submission) map[string]string {
	errs := Step(form.SortedFields(), sub.Answers)

	fil, ok := form.FiliereByID(sub.FiliereID)
	switch {
	case sub.FiliereID == "":
		errs["filiere"] = "Veuillez choisir une filière"
	case !ok:
		errs["filiere"] = "Filière inconnue"
	case sub.Mention == "":
		errs["mention"] = "Veuillez choisir une mention"
	case !contains(fil.Mentions, sub.Mention):
		errs["mention"] = "Mention inconnue pour cette filière"
	}

	// second choice is optional, but must be coherent when present
	if sub.FiliereID2 != "" {
		fil2, ok := form.FiliereByID(sub.FiliereID2)
		switch {
		case !ok:
			errs["filiere2"] = "Filière inconnue"
		case sub.FiliereID2 == sub.FiliereID:
			errs["filiere2"] = "La deuxième filière doit être différente de la première"
		case sub.Mention2 == "":
			errs["mention2"] = "Veuillez choisir une mention"
		case !contains(fil2.Mentions, sub.Mention2):
			errs["mention2"] = "Mention inconnue pour cette filière"
		}
	}

	return errs
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case bool:
		return !v
	default:
		return false
	}
}

func email(value any) string {
	if !reEmail.MatchString(asString(value)) {
		return "Adresse email invalide"
	}
	return ""
}

func tel(value any) string {
	s := asString(value)
	if !reTel.MatchString(s) || len(reDigit.FindAllString(s, -1)) < 8 {
		return "Numéro de téléphone invalide"
	}
	return ""
}

func number(f model.Field, value any) string {
	var n float64
	switch v := value.(type) {
	case float64:
		n = v
	default:
		var err error
		n, err = strconv.ParseFloat(strings.TrimSpace(asString(value)), 64)
		if err != nil {
			return "Valeur numérique invalide"
		}
	}
	if f.Min != nil && n < *f.Min {
		return fmt.Sprintf("La valeur doit être au moins %g", *f.Min)
	}
	if f.Max != nil && n > *f.Max {
		return fmt.Sprintf("La valeur ne doit pas dépasser %g", *f.Max)
	}
	return ""
}

func date(f model.Field, value any) string {
	s := strings.TrimSpace(asString(value))
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		if d, err = time.Parse(time.RFC3339, s); err != nil {
			return "Date invalide"
		}
	}
	if isBirthDate(f.Label) && d.After(time.Now()) {
		return "La date de naissance ne peut pas être dans le futur"
	}
	return ""
}

// isBirthDate matches labels like "Date de naissance".
func isBirthDate(label string) bool {
	return strings.Contains(strings.ToLower(label), "naissance")
}

func absoluteURL(value any) string {
	u, err := url.Parse(asString(value))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "URL invalide"
	}
	return ""
}

func text(f model.Field, value any) string {
	s := asString(value)
	if f.MinLength != nil && len([]rune(s)) < *f.MinLength {
		return fmt.Sprintf("Minimum %d caractères", *f.MinLength)
	}
	if f.MaxLength != nil && len([]rune(s)) > *f.MaxLength {
		return fmt.Sprintf("Maximum %d caractères", *f.MaxLength)
	}
	if f.Pattern != "" {
		re, err := regexp.Compile(f.Pattern)
		// an uncompilable admin pattern never blocks the candidate
		if err == nil && !re.MatchString(s) {
			return "Format invalide"
		}
	}
	return ""
}

func oneOf(f model.Field, value any) string {
	if len(f.Options) > 0 && !contains(f.Options, asString(value)) {
		return "Choix invalide"
	}
	return ""
}

func checkedOptions(f model.Field, value any) string {
	values, ok := value.([]any)
	if !ok {
		// single checkbox bound to a boolean
		if _, ok := value.(bool); ok {
			return ""
		}
		values = []any{value}
	}
	if len(f.Options) == 0 {
		return ""
	}
	for _, v := range values {
		if !contains(f.Options, asString(v)) {
			return "Choix invalide"
		}
	}
	return ""
}

func asString(value any) string {
	return model.AnswerString(value)
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
