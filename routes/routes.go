package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/istm-portal/backend/app"
	"github.com/istm-portal/backend/model"
	"github.com/istm-portal/backend/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Logger, middleware.Recoverer)

	root.Mount("/api", apiRouter(app))

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	// candidate-facing surface: published forms and the wizard pipeline
	api.Get("/forms", PublicListForms(app))
	api.Get("/forms/{id}", PublicGetForm(app))
	api.Post("/forms/{id}/validate", PublicValidateStep(app))
	api.Post("/forms/{id}/submissions", PublicSubmitForm(app))
	api.Get("/submissions/{matricule}", PublicGetSubmission(app))
	api.Get("/submissions/{matricule}/pdf", PublicDownloadPDF(app))

	api.Route("/admin", func(r chi.Router) {
		r.Use(middlewares.Admin(app.TokenSecret))

		// CRUD form
		r.Post("/forms", CreateForm(app))
		r.Get("/forms", ListForms(app))
		r.Get("/forms/{id}", GetFormById(app))
		r.Put("/forms/{id}", UpdateForm(app))
		r.Delete("/forms/{id}", DeleteForm(app))

		// lifecycle
		r.Post("/forms/{id}/publish", SetFormStatus(app, model.FormPublished))
		r.Post("/forms/{id}/archive", SetFormStatus(app, model.FormArchived))
		r.Post("/forms/{id}/duplicate", DuplicateForm(app))

		// submissions back-office
		r.Get("/forms/{id}/submissions", GetFormSubmissions(app))
		r.Get("/forms/{id}/export.csv", ExportFormCSV(app))
		r.Patch("/submissions/{id}/status", UpdateSubmissionStatus(app))
		r.Delete("/submissions/{id}", DeleteSubmission(app))

		// dashboard
		r.Get("/stats", GetStats(app))
		r.Get("/stats.pdf", ExportStatsPDF(app))
	})

	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))

	return api
}
