package domain

import (
	"context"
	"sync"
)

type fakeProjects struct {
	mu        sync.Mutex
	projects  map[string]Project
	updateErr error
	updates   int
}

func newFakeProjects(ps ...Project) *fakeProjects {
	f := &fakeProjects{projects: map[string]Project{}}
	for _, p := range ps {
		f.projects[p.Key] = p.Clone()
	}
	return f
}

func (f *fakeProjects) ListProjects(ctx context.Context) ([]Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Project, 0, len(f.projects))
	for _, p := range f.projects {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (f *fakeProjects) GetProject(ctx context.Context, key string) (Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[key]
	if !ok {
		return Project{}, ErrProjectNotFound
	}
	return p.Clone(), nil
}

func (f *fakeProjects) CreateProject(ctx context.Context, p Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[p.Key]; ok {
		return ErrProjectExists
	}
	f.projects[p.Key] = p.Clone()
	return nil
}

func (f *fakeProjects) UpdateProject(ctx context.Context, key string, upd ProjectUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	p, ok := f.projects[key]
	if !ok {
		return ErrProjectNotFound
	}
	p.Name, p.Items, p.Access = upd.Name, cloneItems(upd.Items), append([]string(nil), upd.Access...)
	f.projects[key] = p
	f.updates++
	return nil
}

func (f *fakeProjects) DeleteProject(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[key]; !ok {
		return ErrProjectNotFound
	}
	delete(f.projects, key)
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []ChangeNotice
}

func (r *recordingNotifier) Notify(n ChangeNotice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.notices))
	for i, n := range r.notices {
		out[i] = n.Type
	}
	return out
}

type fakeUsers struct {
	users map[string]User
}

func (f *fakeUsers) ListUsers(ctx context.Context) ([]User, error) {
	out := make([]User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUsers) GetUser(ctx context.Context, cc string) (User, error) {
	u, ok := f.users[cc]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) CreateUser(ctx context.Context, u User) error {
	if f.users == nil {
		f.users = map[string]User{}
	}
	if _, ok := f.users[u.CC]; ok {
		return ErrUserExists
	}
	f.users[u.CC] = u
	return nil
}

func (f *fakeUsers) UpdateUser(ctx context.Context, u User) error {
	if _, ok := f.users[u.CC]; !ok {
		return ErrUserNotFound
	}
	f.users[u.CC] = u
	return nil
}

func (f *fakeUsers) DeleteUser(ctx context.Context, cc string) error {
	if _, ok := f.users[cc]; !ok {
		return ErrUserNotFound
	}
	delete(f.users, cc)
	return nil
}
