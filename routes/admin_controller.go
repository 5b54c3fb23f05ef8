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
	"github.com/istm-portal/backend/model"
	"github.com/istm-portal/backend/routes/middlewares"
	"github.com/istm-portal/backend/store"
)

// validateFormSchema rejects builder payloads the portal could not serve:
// unknown field types, duplicate field ids, options missing on choice types.
func validateFormSchema(form *model.Form) map[string]string {
	errs := map[string]string{}

	if form.Title == "" {
		errs["title"] = "Le titre est obligatoire"
	}

	seen := map[string]bool{}
	for _, f := range form.Fields {
		switch f.Type {
		case model.FieldText, model.FieldEmail, model.FieldTel, model.FieldNumber,
			model.FieldDate, model.FieldTextarea, model.FieldSelect, model.FieldRadio,
			model.FieldCheckbox, model.FieldFile, model.FieldURL:
		default:
			errs[f.ID] = "Type de champ inconnu"
			continue
		}
		if seen[f.ID] {
			errs[f.ID] = "Identifiant de champ dupliqué"
		}
		seen[f.ID] = true
		if f.Type.HasOptions() && len(f.Options) == 0 {
			errs[f.ID] = "Liste d'options vide"
		}
	}
	return errs
}

// assignIDs gives fresh ids to builder-created fields and filières that
// come in without one.
func assignIDs(form *model.Form) {
	for i := range form.Fields {
		if form.Fields[i].ID == "" {
			form.Fields[i].ID = model.NewID()
		}
	}
	for i := range form.Filieres {
		if form.Filieres[i].ID == "" {
			form.Filieres[i].ID = model.NewID()
		}
	}
}

func CreateForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form := model.Form{}
		if err := render.DecodeJSON(r.Body, &form); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		assignIDs(&form)
		if errs := validateFormSchema(&form); len(errs) > 0 {
			httpx.ValidationErrors(w, r, errs)
			return
		}

		now := time.Now().UTC()
		form.ID = model.NewID()
		form.Version = 0
		form.Status = model.FormDraft
		form.CreatedBy = middlewares.Username(r)
		form.CreatedAt = now
		form.UpdatedAt = now

		if err := app.Store.CreateForm(r.Context(), &form); err != nil {
			httpx.LogInternalError(w, "db.insert_form", err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": form.ID,
		})
	}
}

func ListForms(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		forms, err := app.Store.GetForms(r.Context())
		if err != nil {
			httpx.LogInternalError(w, "db.get_forms", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"forms": forms,
		})
	}
}

func GetFormById(app app.App) http.HandlerFunc {
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

		render.JSON(w, r, form)
	}
}

func UpdateForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId := chi.URLParam(r, "id")

		form := model.Form{}
		if err := render.DecodeJSON(r.Body, &form); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		form.ID = formId

		assignIDs(&form)
		if errs := validateFormSchema(&form); len(errs) > 0 {
			httpx.ValidationErrors(w, r, errs)
			return
		}

		err := app.Store.UpdateForm(r.Context(), &form)
		switch {
		case errors.Is(err, store.ErrNotFound):
			httpx.LogNotFound(w, "update_form", formId)
		case errors.Is(err, store.ErrConflict):
			// optimistic lock: someone else saved this form first
			httpx.LogStatus(w, http.StatusConflict, log.DebugLevel, "db.update_form.conflict")
		case err != nil:
			httpx.LogInternalError(w, "db.update_form", err)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

func DeleteForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId := chi.URLParam(r, "id")

		err := app.Store.DeleteForm(r.Context(), formId)
		if errors.Is(err, store.ErrNotFound) {
			httpx.LogNotFound(w, "delete_form", formId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.delete_form", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// SetFormStatus drives the draft -> published -> archived lifecycle.
func SetFormStatus(app app.App, status model.FormStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId := chi.URLParam(r, "id")

		form, err := app.Store.GetForm(r.Context(), formId)
		if errors.Is(err, store.ErrNotFound) {
			httpx.LogNotFound(w, "set_form_status", formId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_form", err)
			return
		}

		// archived is terminal
		if form.Status == model.FormArchived {
			httpx.LogStatus(w, http.StatusConflict, log.DebugLevel, "set_form_status.archived")
			return
		}

		form.Status = status
		err = app.Store.UpdateForm(r.Context(), &form)
		if errors.Is(err, store.ErrConflict) {
			httpx.LogStatus(w, http.StatusConflict, log.DebugLevel, "db.update_form.conflict")
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.update_form", err)
			return
		}

		render.JSON(w, r, form)
	}
}

func DuplicateForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId := chi.URLParam(r, "id")

		form, err := app.Store.GetForm(r.Context(), formId)
		if errors.Is(err, store.ErrNotFound) {
			httpx.LogNotFound(w, "duplicate_form", formId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_form", err)
			return
		}

		dup := form.Duplicate(time.Now().UTC())
		dup.CreatedBy = middlewares.Username(r)
		if err := app.Store.CreateForm(r.Context(), &dup); err != nil {
			httpx.LogInternalError(w, "db.insert_form", err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": dup.ID,
		})
	}
}

func GetFormSubmissions(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId := chi.URLParam(r, "id")

		status := model.SubmissionStatus(r.URL.Query().Get("status"))
		if status != "" && !status.Valid() {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_query_param.status")
			return
		}

		subs, err := app.Store.GetSubmissions(r.Context(), store.SubmissionFilter{
			FormID: formId,
			Status: status,
		})
		if err != nil {
			httpx.LogInternalError(w, "db.get_submissions", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"submissions": subs,
		})
	}
}

type statusRequest struct {
	Status model.SubmissionStatus `json:"status"`
}

// UpdateSubmissionStatus adjudicates one submission. Every move lands in
// the append-only transition log with the acting administrator.
func UpdateSubmissionStatus(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subId := chi.URLParam(r, "id")

		req := statusRequest{}
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		if !req.Status.Valid() {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body.status")
			return
		}

		sub, err := app.Store.UpdateSubmissionStatus(r.Context(), subId, req.Status, middlewares.Username(r))
		if errors.Is(err, store.ErrNotFound) {
			httpx.LogNotFound(w, "update_submission_status", subId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.update_submission", err)
			return
		}

		render.JSON(w, r, sub)
	}
}

func DeleteSubmission(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subId := chi.URLParam(r, "id")

		err := app.Store.DeleteSubmission(r.Context(), subId)
		if errors.Is(err, store.ErrNotFound) {
			httpx.LogNotFound(w, "delete_submission", subId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.delete_submission", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// ExportFormCSV streams every submission of a form as a flat CSV, columns
// following the form's field order.
func ExportFormCSV(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId := chi.URLParam(r, "id")

		form, err := app.Store.GetForm(r.Context(), formId)
		if errors.Is(err, store.ErrNotFound) {
			httpx.LogNotFound(w, "export_csv.get_form", formId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_form", err)
			return
		}

		subs, err := app.Store.GetSubmissions(r.Context(), store.SubmissionFilter{FormID: formId})
		if err != nil {
			httpx.LogInternalError(w, "db.get_submissions", err)
			return
		}

		w.Header().Set("content-type", "text/csv; charset=utf-8")
		w.Header().Set("content-disposition",
			`attachment; filename="`+export.CSVFileName(&form, time.Now())+`"`)

		if err := export.WriteCSV(w, &form, subs); err != nil {
			log.Errorf("export.csv: %s", err)
		}
	}
}

func GetStats(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := computeStats(app, r)
		if err != nil {
			httpx.LogInternalError(w, "db.stats", err)
			return
		}
		render.JSON(w, r, stats)
	}
}

func ExportStatsPDF(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := computeStats(app, r)
		if err != nil {
			httpx.LogInternalError(w, "db.stats", err)
			return
		}

		now := time.Now()
		w.Header().Set("content-type", "application/pdf")
		w.Header().Set("content-disposition",
			`attachment; filename="`+export.StatsPDFFileName(now)+`"`)

		opts := export.Options{LogoPath: app.LogoPath}
		if err := export.WriteStatsPDF(w, stats, opts); err != nil {
			log.Errorf("export.stats_pdf: %s", err)
		}
	}
}

func computeStats(app app.App, r *http.Request) (export.Stats, error) {
	forms, err := app.Store.GetForms(r.Context())
	if err != nil {
		return export.Stats{}, err
	}
	subs, err := app.Store.GetSubmissions(r.Context(), store.SubmissionFilter{})
	if err != nil {
		return export.Stats{}, err
	}
	return export.ComputeStats(forms, subs, time.Now().UTC()), nil
}
