package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/istm-portal/backend/app"
	"github.com/istm-portal/backend/config"
	"github.com/istm-portal/backend/model"
	"github.com/istm-portal/backend/store"
	"github.com/istm-portal/backend/store/storetest"
)

func testApp(st store.Store) app.App {
	return app.App{
		Store: st,
		Config: config.Config{
			TokenSecret: "test-secret",
			TokenTTL:    time.Minute,
		},
	}
}

func registrationForm(status model.FormStatus) *model.Form {
	now := time.Now().UTC()
	return &model.Form{
		ID:     model.NewID(),
		Title:  "Inscription 2026",
		Status: status,
		Fields: []model.Field{
			{ID: "f-nom", Type: model.FieldText, Label: "Nom", Required: true, Order: 1},
			{ID: "f-prenom", Type: model.FieldText, Label: "Prénom", Required: true, Order: 2},
			{ID: "f-email", Type: model.FieldEmail, Label: "Email", Required: true, Order: 3},
		},
		Filieres: []model.Filiere{
			{ID: "fil-si", Name: "Soins Infirmiers", Mentions: []string{"Accoucheuse", "Hospitalière"}},
			{ID: "fil-bm", Name: "Biologie Médicale", Mentions: []string{"Laboratoire"}},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", path, bytes.NewReader(payload))
	req.Header.Set("content-type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestPublicListForms_PublishedOnly(t *testing.T) {
	st := storetest.New()
	published := registrationForm(model.FormPublished)
	draft := registrationForm(model.FormDraft)
	require.NoError(t, st.CreateForm(context.Background(), published))
	require.NoError(t, st.CreateForm(context.Background(), draft))

	handler := Wire(testApp(st))
	req := httptest.NewRequest("GET", "/api/forms", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Forms []model.Form `json:"forms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Forms, 1)
	assert.Equal(t, published.ID, resp.Forms[0].ID)
}

func TestPublicGetForm_DraftHidden(t *testing.T) {
	st := storetest.New()
	draft := registrationForm(model.FormDraft)
	require.NoError(t, st.CreateForm(context.Background(), draft))

	handler := Wire(testApp(st))
	req := httptest.NewRequest("GET", "/api/forms/"+draft.ID, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublicValidateStep(t *testing.T) {
	st := storetest.New()
	form := registrationForm(model.FormPublished)
	require.NoError(t, st.CreateForm(context.Background(), form))

	handler := Wire(testApp(st))

	w := postJSON(t, handler, "/api/forms/"+form.ID+"/validate", map[string]any{
		"fieldIds": []string{"f-nom", "f-email"},
		"answers":  map[string]any{"f-email": "pas-un-email"},
	})

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Errors, "f-nom")
	assert.Contains(t, resp.Errors, "f-email")
	// f-prenom is not on this step, so it is not reported
	assert.NotContains(t, resp.Errors, "f-prenom")
}

func validAnswers() map[string]any {
	return map[string]any{
		"f-nom":    "Kabongo",
		"f-prenom": "Divine",
		"f-email":  "divine@example.org",
	}
}

func TestPublicSubmitForm(t *testing.T) {
	st := storetest.New()
	form := registrationForm(model.FormPublished)
	require.NoError(t, st.CreateForm(context.Background(), form))
	handler := Wire(testApp(st))

	t.Run("valid submission gets a matricule", func(t *testing.T) {
		w := postJSON(t, handler, "/api/forms/"+form.ID+"/submissions", map[string]any{
			"answers":    validAnswers(),
			"filiereId":  "fil-si",
			"mention":    "Accoucheuse",
			"filiereId2": "fil-bm",
			"mention2":   "Laboratoire",
		})

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Regexp(t, regexp.MustCompile(`^ISTM\d{8}$`), resp["matricule"])
	})

	t.Run("same identity is rejected", func(t *testing.T) {
		w := postJSON(t, handler, "/api/forms/"+form.ID+"/submissions", map[string]any{
			"answers":   validAnswers(),
			"filiereId": "fil-si",
			"mention":   "Hospitalière",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("missing filière blocks", func(t *testing.T) {
		answers := validAnswers()
		answers["f-email"] = "autre@example.org"
		w := postJSON(t, handler, "/api/forms/"+form.ID+"/submissions", map[string]any{
			"answers": answers,
		})

		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		var resp struct {
			Errors map[string]string `json:"errors"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp.Errors, "filiere")
	})

	t.Run("field errors come back keyed by field id", func(t *testing.T) {
		w := postJSON(t, handler, "/api/forms/"+form.ID+"/submissions", map[string]any{
			"answers":   map[string]any{"f-email": "broken"},
			"filiereId": "fil-si",
			"mention":   "Accoucheuse",
		})

		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		var resp struct {
			Errors map[string]string `json:"errors"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp.Errors, "f-nom")
		assert.Contains(t, resp.Errors, "f-email")
	})
}

func TestPublicSubmitForm_UnpublishedRejected(t *testing.T) {
	st := storetest.New()
	form := registrationForm(model.FormDraft)
	require.NoError(t, st.CreateForm(context.Background(), form))
	handler := Wire(testApp(st))

	w := postJSON(t, handler, "/api/forms/"+form.ID+"/submissions", map[string]any{
		"answers":   validAnswers(),
		"filiereId": "fil-si",
		"mention":   "Accoucheuse",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPublicGetSubmissionAndPDF(t *testing.T) {
	st := storetest.New()
	form := registrationForm(model.FormPublished)
	require.NoError(t, st.CreateForm(context.Background(), form))
	handler := Wire(testApp(st))

	w := postJSON(t, handler, "/api/forms/"+form.ID+"/submissions", map[string]any{
		"answers":   validAnswers(),
		"filiereId": "fil-si",
		"mention":   "Accoucheuse",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	t.Run("lookup by matricule", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/submissions/"+created["matricule"], nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var sub model.Submission
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))
		assert.Equal(t, "Kabongo", sub.Nom)
		assert.Equal(t, model.StatusPending, sub.Status)
	})

	t.Run("attestation download", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/submissions/"+created["matricule"]+"/pdf", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/pdf", w.Header().Get("content-type"))
		assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
	})

	t.Run("unknown matricule", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/submissions/ISTM00000000", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

// Selecting a backend is constructing the adapter: two portals wired over
// two stores each see only their own data, with no merge between them.
func TestBackendSelectionIsExplicit(t *testing.T) {
	mongoLike := storetest.New()
	pgLike := storetest.New()

	formA := registrationForm(model.FormPublished)
	require.NoError(t, mongoLike.CreateForm(context.Background(), formA))

	listIDs := func(st store.Store) []string {
		handler := Wire(testApp(st))
		req := httptest.NewRequest("GET", "/api/forms", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Forms []model.Form `json:"forms"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		ids := []string{}
		for _, f := range resp.Forms {
			ids = append(ids, f.ID)
		}
		return ids
	}

	assert.Equal(t, []string{formA.ID}, listIDs(mongoLike))
	assert.Empty(t, listIDs(pgLike))
}
