package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/pkg/errors"

	"github.com/istm-portal/backend/app"
	"github.com/istm-portal/backend/export"
	"github.com/istm-portal/backend/httpx"
	"github.com/istm-portal/backend/log"
	"github.com/istm-portal/backend/matricule"
	"github.com/istm-portal/backend/model"
	"github.com/istm-portal/backend/store"
	"github.com/istm-portal/backend/validation"
)

// PublicListForms returns the published forms only; drafts and archived
// forms are never offered to candidates.
func PublicListForms(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		forms, err := app.Store.GetForms(r.Context())
		if err != nil {
			httpx.LogInternalError(w, "db.get_forms", err)
			return
		}

		published := []model.Form{}
		for _, f := range forms {
			if f.Status == model.FormPublished {
				published = append(published, f)
			}
		}

		render.JSON(w, r, map[string]any{
			"forms": published,
		})
	}
}

func PublicGetForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId := chi.URLParam(r, "id")

		form, err := app.Store.GetForm(r.Context(), formId)
		if errors.Is(err, store.ErrNotFound) {
			httpx.LogNotFound(w, "get_form", formId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_form", err)
			return
		}
		if form.Status != model.FormPublished {
			httpx.LogNotFound(w, "get_form.not_published", formId)
			return
		}

		render.JSON(w, r, form)
	}
}

type stepRequest struct {
	FieldIds []string       `json:"fieldIds"`
	Answers  map[string]any `json:"answers"`
}

// PublicValidateStep checks only the fields visible on one wizard step, so
// the client can block navigation before the final confirmation.
func PublicValidateStep(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId := chi.URLParam(r, "id")

		req := stepRequest{}
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		form, err := app.Store.GetForm(r.Context(), formId)
		if errors.Is(err, store.ErrNotFound) {
			httpx.LogNotFound(w, "validate_step.get_form", formId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_form", err)
			return
		}

		fields := []model.Field{}
		for _, id := range req.FieldIds {
			if f, ok := form.FieldByID(id); ok {
				fields = append(fields, f)
			}
		}

		render.JSON(w, r, map[string]any{
			"errors": validation.Step(fields, req.Answers),
		})
	}
}

type submitRequest struct {
	Answers    map[string]any `json:"answers"`
	FiliereID  string         `json:"filiereId"`
	Mention    string         `json:"mention"`
	FiliereID2 string         `json:"filiereId2"`
	Mention2   string         `json:"mention2"`
}

// PublicSubmitForm is the final confirmation step: exhaustive validation
// over every field plus the filière choices, then the storage-level
// duplicate guard, then the matricule.
func PublicSubmitForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId := chi.URLParam(r, "id")

		req := submitRequest{}
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		form, err := app.Store.GetForm(r.Context(), formId)
		if errors.Is(err, store.ErrNotFound) {
			httpx.LogNotFound(w, "submit.get_form", formId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_form", err)
			return
		}
		if form.Status != model.FormPublished {
			httpx.LogStatus(w, http.StatusConflict, log.DebugLevel, "submit.not_published")
			return
		}

		now := time.Now().UTC()
		sub := model.Submission{
			ID:          model.NewID(),
			FormID:      form.ID,
			Answers:     req.Answers,
			FiliereID:   req.FiliereID,
			Mention:     req.Mention,
			FiliereID2:  req.FiliereID2,
			Mention2:    req.Mention2,
			Status:      model.StatusPending,
			SubmittedAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if fil, ok := form.FiliereByID(req.FiliereID); ok {
			sub.FiliereName = fil.Name
		}
		if fil, ok := form.FiliereByID(req.FiliereID2); ok {
			sub.FiliereName2 = fil.Name
		}
		sub.ExtractIdentity(&form)

		if errs := validation.Final(&form, &sub); len(errs) > 0 {
			httpx.ValidationErrors(w, r, errs)
			return
		}

		sub.Matricule = matricule.New(now)

		err = app.Store.CreateSubmission(r.Context(), &sub)
		if errors.Is(err, store.ErrDuplicate) {
			httpx.LogStatusMsg(w, http.StatusConflict, log.DebugLevel,
				"submit.duplicate", "Une inscription existe déjà pour cette identité")
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.insert_submission", err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id":        sub.ID,
			"matricule": sub.Matricule,
		})
	}
}

func PublicGetSubmission(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := chi.URLParam(r, "matricule")

		sub, err := app.Store.GetSubmissionByMatricule(r.Context(), m)
		if errors.Is(err, store.ErrNotFound) {
			httpx.LogNotFound(w, "get_submission", m)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_submission", err)
			return
		}

		render.JSON(w, r, sub)
	}
}

// PublicDownloadPDF streams the registration attestation for a matricule.
func PublicDownloadPDF(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := chi.URLParam(r, "matricule")

		sub, err := app.Store.GetSubmissionByMatricule(r.Context(), m)
		if errors.Is(err, store.ErrNotFound) {
			httpx.LogNotFound(w, "download_pdf.get_submission", m)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_submission", err)
			return
		}

		form, err := app.Store.GetForm(r.Context(), sub.FormID)
		if err != nil {
			httpx.LogInternalError(w, "db.get_form", err)
			return
		}

		w.Header().Set("content-type", "application/pdf")
		w.Header().Set("content-disposition",
			`attachment; filename="`+export.RegistrationPDFFileName(&form, &sub)+`"`)

		opts := export.Options{LogoPath: app.LogoPath}
		if err := export.WriteRegistrationPDF(w, &form, &sub, opts); err != nil {
			log.Errorf("export.registration_pdf: %s", err)
		}
	}
}
