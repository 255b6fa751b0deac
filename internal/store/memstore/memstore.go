// Package memstore is an in-process store.Store used by DATABASE_URL=memory://
// and by tests. Tx works on a copy of the data and swaps it in on success.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"workflowai/internal/apperr"
	"workflowai/internal/models"
	"workflowai/internal/store"
)

type data struct {
	users     map[string]models.User
	workflows map[string]models.Workflow
	logs      map[string]models.ExecutionLog
	templates map[string]models.Template
	states    map[string]time.Time
}

func newData() *data {
	return &data{
		users:     map[string]models.User{},
		workflows: map[string]models.Workflow{},
		logs:      map[string]models.ExecutionLog{},
		templates: map[string]models.Template{},
		states:    map[string]time.Time{},
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.workflows {
		c.workflows[k] = v
	}
	for k, v := range d.logs {
		v.Details = append([]byte(nil), v.Details...)
		c.logs[k] = v
	}
	for k, v := range d.templates {
		c.templates[k] = v
	}
	for k, v := range d.states {
		c.states[k] = v
	}
	return c
}

type Store struct {
	mu *sync.Mutex
	d  *data
	// inTx is set on the view handed to Tx callbacks; the lock is already held.
	inTx bool
}

func New() *Store {
	return &Store{mu: &sync.Mutex{}, d: newData()}
}

func (s *Store) Users() store.Users                 { return users{s} }
func (s *Store) Workflows() store.Workflows         { return workflows{s} }
func (s *Store) ExecutionLogs() store.ExecutionLogs { return executionLogs{s} }
func (s *Store) Templates() store.Templates         { return templates{s} }
func (s *Store) OAuthStates() store.OAuthStates     { return oauthStates{s} }

func (s *Store) Tx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	view := &Store{mu: s.mu, d: s.d.clone(), inTx: true}
	if err := fn(view); err != nil {
		return err
	}
	s.d = view.d
	return nil
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func page[T any](items []T, p store.Page) []T {
	p = p.Normalize()
	if p.Skip >= len(items) {
		return []T{}
	}
	items = items[p.Skip:]
	if len(items) > p.Limit {
		items = items[:p.Limit]
	}
	return items
}

type users struct{ s *Store }

func (r users) Create(_ context.Context, u *models.User) error {
	defer r.s.lock()()
	for _, ex := range r.s.d.users {
		if ex.Email == u.Email || ex.Username == u.Username {
			return store.ErrDuplicate
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	r.s.d.users[u.ID] = *u
	return nil
}

func (r users) find(match func(models.User) bool) (*models.User, error) {
	defer r.s.lock()()
	for _, u := range r.s.d.users {
		if match(u) {
			out := u
			return &out, nil
		}
	}
	return nil, apperr.NotFound("User")
}

func (r users) ByID(_ context.Context, id string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.ID == id })
}

func (r users) ByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Email == email })
}

func (r users) ByUsername(_ context.Context, username string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Username == username })
}

func (r users) List(_ context.Context, p store.Page) ([]models.User, error) {
	defer r.s.lock()()
	out := make([]models.User, 0, len(r.s.d.users))
	for _, u := range r.s.d.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, p), nil
}

func (r users) Save(_ context.Context, u *models.User) error {
	defer r.s.lock()()
	if _, ok := r.s.d.users[u.ID]; !ok {
		return apperr.NotFound("User")
	}
	for _, ex := range r.s.d.users {
		if ex.ID != u.ID && (ex.Email == u.Email || ex.Username == u.Username) {
			return store.ErrDuplicate
		}
	}
	u.UpdatedAt = time.Now().UTC()
	r.s.d.users[u.ID] = *u
	return nil
}

func (r users) SetToken(_ context.Context, id, token string) error {
	defer r.s.lock()()
	u, ok := r.s.d.users[id]
	if !ok {
		return apperr.NotFound("User")
	}
	u.Token = token
	r.s.d.users[id] = u
	return nil
}

type workflows struct{ s *Store }

func (r workflows) Create(_ context.Context, w *models.Workflow) error {
	defer r.s.lock()()
	if _, ok := r.s.d.users[w.OwnerID]; !ok {
		return apperr.NotFound("User")
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Version == 0 {
		w.Version = 1
	}
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	r.s.d.workflows[w.ID] = *w
	return nil
}

func (r workflows) Get(_ context.Context, ownerID, id string) (*models.Workflow, error) {
	defer r.s.lock()()
	w, ok := r.s.d.workflows[id]
	if !ok || w.OwnerID != ownerID {
		return nil, apperr.NotFound("Workflow")
	}
	return &w, nil
}

func (r workflows) List(_ context.Context, ownerID string, p store.Page) ([]models.Workflow, error) {
	defer r.s.lock()()
	out := []models.Workflow{}
	for _, w := range r.s.d.workflows {
		if w.OwnerID == ownerID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, p), nil
}

func (r workflows) All(_ context.Context) ([]models.Workflow, error) {
	defer r.s.lock()()
	out := make([]models.Workflow, 0, len(r.s.d.workflows))
	for _, w := range r.s.d.workflows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r workflows) Update(_ context.Context, w *models.Workflow) error {
	defer r.s.lock()()
	cur, ok := r.s.d.workflows[w.ID]
	if !ok || cur.OwnerID != w.OwnerID || cur.Version != w.Version {
		return apperr.ErrConflict
	}
	cur.Name, cur.Description, cur.IsActive = w.Name, w.Description, w.IsActive
	cur.Version++
	cur.UpdatedAt = time.Now().UTC()
	r.s.d.workflows[w.ID] = cur
	w.Version, w.UpdatedAt = cur.Version, cur.UpdatedAt
	return nil
}

func (r workflows) Delete(_ context.Context, ownerID, id string) error {
	defer r.s.lock()()
	w, ok := r.s.d.workflows[id]
	if !ok || w.OwnerID != ownerID {
		return apperr.NotFound("Workflow")
	}
	delete(r.s.d.workflows, id)
	for lid, l := range r.s.d.logs {
		if l.WorkflowID == id {
			delete(r.s.d.logs, lid)
		}
	}
	return nil
}

type executionLogs struct{ s *Store }

func (r executionLogs) Create(_ context.Context, l *models.ExecutionLog) error {
	defer r.s.lock()()
	if _, ok := r.s.d.workflows[l.WorkflowID]; !ok {
		return apperr.NotFound("Workflow")
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.ExecutionTime.IsZero() {
		l.ExecutionTime = time.Now().UTC()
	}
	r.s.d.logs[l.ID] = *l
	return nil
}

func (r executionLogs) Get(_ context.Context, userID, id string) (*models.ExecutionLog, error) {
	defer r.s.lock()()
	l, ok := r.s.d.logs[id]
	if !ok || l.UserID != userID {
		return nil, apperr.NotFound("Log")
	}
	return &l, nil
}

func (r executionLogs) list(match func(models.ExecutionLog) bool, p store.Page) []models.ExecutionLog {
	defer r.s.lock()()
	out := []models.ExecutionLog{}
	for _, l := range r.s.d.logs {
		if match(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutionTime.After(out[j].ExecutionTime) })
	return page(out, p)
}

func (r executionLogs) ListByUser(_ context.Context, userID string, p store.Page) ([]models.ExecutionLog, error) {
	return r.list(func(l models.ExecutionLog) bool { return l.UserID == userID }, p), nil
}

func (r executionLogs) ListByWorkflow(_ context.Context, userID, workflowID string, p store.Page) ([]models.ExecutionLog, error) {
	return r.list(func(l models.ExecutionLog) bool {
		return l.UserID == userID && l.WorkflowID == workflowID
	}, p), nil
}

func (r executionLogs) UpdateStatus(_ context.Context, id, status string, details []byte) error {
	defer r.s.lock()()
	l, ok := r.s.d.logs[id]
	if !ok {
		return apperr.NotFound("Log")
	}
	l.Status, l.Details = status, append([]byte(nil), details...)
	r.s.d.logs[id] = l
	return nil
}

type templates struct{ s *Store }

func (r templates) Create(_ context.Context, t *models.Template) error {
	defer r.s.lock()()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	r.s.d.templates[t.ID] = *t
	return nil
}

func (r templates) Get(_ context.Context, id string) (*models.Template, error) {
	defer r.s.lock()()
	t, ok := r.s.d.templates[id]
	if !ok {
		return nil, apperr.NotFound("Template")
	}
	return &t, nil
}

func (r templates) List(_ context.Context, p store.Page) ([]models.Template, error) {
	defer r.s.lock()()
	out := make([]models.Template, 0, len(r.s.d.templates))
	for _, t := range r.s.d.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return page(out, p), nil
}

func (r templates) Save(_ context.Context, t *models.Template) error {
	defer r.s.lock()()
	if _, ok := r.s.d.templates[t.ID]; !ok {
		return apperr.NotFound("Template")
	}
	t.UpdatedAt = time.Now().UTC()
	r.s.d.templates[t.ID] = *t
	return nil
}

func (r templates) Delete(_ context.Context, id string) error {
	defer r.s.lock()()
	if _, ok := r.s.d.templates[id]; !ok {
		return apperr.NotFound("Template")
	}
	delete(r.s.d.templates, id)
	return nil
}

type oauthStates struct{ s *Store }

func (r oauthStates) Save(_ context.Context, state string, expiresAt time.Time) error {
	defer r.s.lock()()
	r.s.d.states[state] = expiresAt
	return nil
}

func (r oauthStates) Consume(_ context.Context, state string, now time.Time) (bool, error) {
	defer r.s.lock()()
	exp, ok := r.s.d.states[state]
	if !ok {
		return false, nil
	}
	delete(r.s.d.states, state)
	return exp.After(now), nil
}
