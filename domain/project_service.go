package domain

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ProjectRepository persists projects. Updates are last-write-wins.
type ProjectRepository interface {
	ListProjects(ctx context.Context) ([]Project, error)
	GetProject(ctx context.Context, key string) (Project, error)
	CreateProject(ctx context.Context, p Project) error
	UpdateProject(ctx context.Context, key string, upd ProjectUpdate) error
	DeleteProject(ctx context.Context, key string) error
}

// ProjectService applies role rules to project management.
type ProjectService struct {
	repo     ProjectRepository
	notifier Notifier
	log      *log.Logger
}

func NewProjectService(repo ProjectRepository, notifier Notifier, logger *log.Logger) *ProjectService {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &ProjectService{repo: repo, notifier: notifierOrNoop(notifier), log: logger}
}

// List returns the projects visible to the actor, filtered by search.
func (s *ProjectService) List(ctx context.Context, actor Actor, search string) ([]Project, error) {
	if !CanEditBoard(actor.Role) {
		return nil, ErrForbidden
	}
	all, err := s.repo.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	out := make([]Project, 0, len(all))
	for _, p := range all {
		if !visibleTo(p, actor) || !p.Matches(search) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Get returns one project if the actor may see it.
func (s *ProjectService) Get(ctx context.Context, actor Actor, key string) (Project, error) {
	return loadVisible(ctx, s.repo, actor, key)
}

// Create stores a new project. SM and SCRUM only.
func (s *ProjectService) Create(ctx context.Context, actor Actor, p Project) (Project, error) {
	if !IsScrum(actor.Role) {
		return Project{}, ErrForbidden
	}
	p.Key = strings.TrimSpace(p.Key)
	p.Name = strings.TrimSpace(p.Name)
	if p.Key == "" || p.Name == "" {
		return Project{}, fmt.Errorf("%w: pro and projectName are required", ErrInvalidInput)
	}
	items, err := sanitizeItems(p.Items)
	if err != nil {
		return Project{}, err
	}
	if len(items) == 0 {
		return Project{}, fmt.Errorf("%w: at least one HU is required", ErrInvalidInput)
	}
	p.Items = items
	p.Access = sanitizeAccess(p.Access)
	if len(p.Access) == 0 {
		return Project{}, fmt.Errorf("%w: at least one access entry is required", ErrInvalidInput)
	}
	if err := s.repo.CreateProject(ctx, p); err != nil {
		return Project{}, fmt.Errorf("create project %s: %w", p.Key, err)
	}
	s.log.WithFields(log.Fields{"project": p.Key, "actor": actor.CC}).Info("project created")
	s.notifier.Notify(ChangeNotice{ProjectKey: p.Key, Type: ProjectCreated, Actor: actor.CC})
	return p, nil
}

// Update replaces the editable fields of a project. PO may only replace the HU list.
func (s *ProjectService) Update(ctx context.Context, actor Actor, key string, upd ProjectUpdate) (Project, error) {
	if !CanEditProjectHuSection(actor.Role) {
		return Project{}, ErrForbidden
	}
	current, err := loadVisible(ctx, s.repo, actor, key)
	if err != nil {
		return Project{}, err
	}
	items, err := sanitizeItems(upd.Items)
	if err != nil {
		return Project{}, err
	}
	upd.Items = items
	if IsScrum(actor.Role) {
		upd.Name = strings.TrimSpace(upd.Name)
		if upd.Name == "" {
			return Project{}, fmt.Errorf("%w: projectName is required", ErrInvalidInput)
		}
		upd.Access = sanitizeAccess(upd.Access)
		if len(upd.Access) == 0 {
			return Project{}, fmt.Errorf("%w: at least one access entry is required", ErrInvalidInput)
		}
	} else {
		upd.Name = current.Name
		upd.Access = current.Access
	}
	if err := s.repo.UpdateProject(ctx, current.Key, upd); err != nil {
		return Project{}, fmt.Errorf("update project %s: %w", current.Key, err)
	}
	current.Name, current.Items, current.Access = upd.Name, upd.Items, upd.Access
	s.notifier.Notify(ChangeNotice{ProjectKey: current.Key, Type: ProjectUpdated, Actor: actor.CC})
	return current, nil
}

// Delete removes a project. SM and SCRUM only.
func (s *ProjectService) Delete(ctx context.Context, actor Actor, key string) error {
	if !IsScrum(actor.Role) {
		return ErrForbidden
	}
	if err := s.repo.DeleteProject(ctx, key); err != nil {
		return fmt.Errorf("delete project %s: %w", key, err)
	}
	s.log.WithFields(log.Fields{"project": key, "actor": actor.CC}).Info("project deleted")
	s.notifier.Notify(ChangeNotice{ProjectKey: key, Type: ProjectDeleted, Actor: actor.CC})
	return nil
}

// visibleTo: scrum roles see everything, other board roles need an access entry.
func visibleTo(p Project, actor Actor) bool {
	if IsScrum(actor.Role) {
		return true
	}
	return CanEditBoard(actor.Role) && p.HasAccess(actor.CC)
}

func loadVisible(ctx context.Context, repo ProjectRepository, actor Actor, key string) (Project, error) {
	if !CanEditBoard(actor.Role) {
		return Project{}, ErrForbidden
	}
	p, err := repo.GetProject(ctx, key)
	if err != nil {
		return Project{}, err
	}
	if !visibleTo(p, actor) {
		return Project{}, ErrProjectNotFound
	}
	return p, nil
}

func sanitizeItems(items []HU) ([]HU, error) {
	out := make([]HU, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		it.ID = strings.TrimSpace(it.ID)
		it.Description = strings.TrimSpace(it.Description)
		it.Status = strings.TrimSpace(it.Status)
		if it.ID == "" || it.Description == "" || it.Status == "" {
			return nil, fmt.Errorf("%w: every HU needs hu, descripcion and status", ErrInvalidInput)
		}
		if _, dup := seen[it.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate HU %q", ErrInvalidInput, it.ID)
		}
		seen[it.ID] = struct{}{}
		out = append(out, it)
	}
	return out, nil
}

func sanitizeAccess(access []string) []string {
	out := make([]string, 0, len(access))
	for _, a := range access {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
