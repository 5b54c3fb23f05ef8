// Package storetest provides an in-memory Store for handler and service
// tests, mirroring the backend semantics (uniqueness, optimistic locking,
// transition log) without a running database.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/istm-portal/backend/model"
	"github.com/istm-portal/backend/store"
)

type Memory struct {
	mu          sync.Mutex
	forms       map[string]model.Form
	submissions map[string]model.Submission
	admins      map[string][]byte
}

var _ store.Store = (*Memory)(nil)

func New() *Memory {
	return &Memory{
		forms:       map[string]model.Form{},
		submissions: map[string]model.Submission{},
		admins:      map[string][]byte{},
	}
}

// SetAdmin registers a back-office account with an already-hashed password.
func (m *Memory) SetAdmin(username string, hash []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admins[username] = hash
}

func (m *Memory) GetForms(ctx context.Context) ([]model.Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	forms := make([]model.Form, 0, len(m.forms))
	for _, f := range m.forms {
		f.SubmissionsCount = m.countLocked(f.ID)
		forms = append(forms, f)
	}
	sort.Slice(forms, func(i, j int) bool { return forms[i].CreatedAt.Before(forms[j].CreatedAt) })
	return forms, nil
}

func (m *Memory) GetForm(ctx context.Context, id string) (model.Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.forms[id]
	if !ok {
		return model.Form{}, store.ErrNotFound
	}
	f.SubmissionsCount = m.countLocked(id)
	return f, nil
}

func (m *Memory) CreateForm(ctx context.Context, form *model.Form) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forms[form.ID] = *form
	return nil
}

func (m *Memory) UpdateForm(ctx context.Context, form *model.Form) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.forms[form.ID]
	if !ok {
		return store.ErrNotFound
	}
	if prev.Version != form.Version {
		return store.ErrConflict
	}
	form.Version++
	form.UpdatedAt = time.Now()
	m.forms[form.ID] = *form
	return nil
}

func (m *Memory) DeleteForm(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.forms[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.forms, id)
	return nil
}

func (m *Memory) GetSubmissions(ctx context.Context, filter store.SubmissionFilter) ([]model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := []model.Submission{}
	for _, s := range m.submissions {
		if filter.FormID != "" && s.FormID != filter.FormID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		subs = append(subs, s)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].SubmittedAt.Before(subs[j].SubmittedAt) })
	return subs, nil
}

func (m *Memory) GetSubmission(ctx context.Context, id string) (model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.submissions[id]
	if !ok {
		return model.Submission{}, store.ErrNotFound
	}
	return s, nil
}

func (m *Memory) GetSubmissionByMatricule(ctx context.Context, matricule string) (model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.submissions {
		if s.Matricule == matricule {
			return s, nil
		}
	}
	return model.Submission{}, store.ErrNotFound
}

func (m *Memory) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.submissions {
		if s.FormID == sub.FormID && s.Email == sub.Email && s.Nom == sub.Nom && s.Prenom == sub.Prenom {
			return store.ErrDuplicate
		}
	}
	m.submissions[sub.ID] = *sub
	return nil
}

func (m *Memory) UpdateSubmissionStatus(ctx context.Context, id string, to model.SubmissionStatus, by string) (model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.submissions[id]
	if !ok {
		return model.Submission{}, store.ErrNotFound
	}
	s.Transition(to, by, time.Now())
	m.submissions[id] = s
	return s, nil
}

func (m *Memory) DeleteSubmission(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.submissions[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.submissions, id)
	return nil
}

func (m *Memory) CountSubmissions(ctx context.Context, formID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked(formID), nil
}

func (m *Memory) AdminPasswordHash(ctx context.Context, username string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash, ok := m.admins[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return hash, nil
}

func (m *Memory) Close(ctx context.Context) error { return nil }

func (m *Memory) countLocked(formID string) int {
	n := 0
	for _, s := range m.submissions {
		if s.FormID == formID {
			n++
		}
	}
	return n
}
