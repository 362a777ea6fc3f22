package domain

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// MoveResult is the outcome of a drag and drop request.
type MoveResult struct {
	Moved   bool    `json:"moved"`
	Project Project `json:"project"`
}

// BoardService gates board reads and card moves through the role policy.
type BoardService struct {
	repo     ProjectRepository
	notifier Notifier
	log      *log.Logger
}

// NewBoardService falls back to the standard logger and a no-op notifier.
func NewBoardService(repo ProjectRepository, notifier Notifier, logger *log.Logger) *BoardService {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &BoardService{repo: repo, notifier: notifierOrNoop(notifier), log: logger}
}

// Board returns the column projection of a project for the actor's role.
func (s *BoardService) Board(ctx context.Context, actor Actor, key string) (Board, error) {
	p, err := loadVisible(ctx, s.repo, actor, key)
	if err != nil {
		return Board{}, err
	}
	return BuildBoard(&p, actor.Role), nil
}

// Move applies a card move. The policy is checked against the stored status
// of the item, not the fromStatus the client reports. A refused move returns a
// *PermissionError and leaves the project untouched. When the write fails the returned project
// carries the pre-move items together with an error wrapping ErrPersistFailed.
func (s *BoardService) Move(ctx context.Context, actor Actor, key string, ev MoveEvent) (MoveResult, error) {
	p, err := loadVisible(ctx, s.repo, actor, key)
	if err != nil {
		return MoveResult{}, err
	}

	idx := findItem(p.Items, ev)
	if idx < 0 {
		return MoveResult{Project: p}, nil
	}
	ev.FromStatus = p.Items[idx].Status

	canEdit := CanEditBoard(actor.Role)
	if !CanDragFromStatus(actor.Role, ev.FromStatus, canEdit) ||
		!CanMoveBetweenStatuses(actor.Role, ev.FromStatus, ev.ToStatus, canEdit) {
		s.log.WithFields(log.Fields{
			"project": p.Key,
			"actor":   actor.CC,
			"role":    NormalizeRole(actor.Role),
			"from":    ev.FromStatus,
			"to":      ev.ToStatus,
			"lane":    LaneOf(ev.FromStatus),
		}).Debug("move denied")
		return MoveResult{Project: p}, &PermissionError{Message: MoveDeniedMessage(actor.Role, ev.FromStatus, ev.ToStatus)}
	}

	updated, ok := ComputeMove(p.Items, ev)
	if !ok {
		return MoveResult{Project: p}, nil
	}

	snapshot := cloneItems(p.Items)
	p.Items = updated
	upd := ProjectUpdate{Name: p.Name, Items: updated, Access: p.Access}
	if err := s.repo.UpdateProject(ctx, p.Key, upd); err != nil {
		p.Items = snapshot
		s.log.WithFields(log.Fields{"project": p.Key, "hu": ev.ItemID, "error": err}).Error("persist move failed")
		return MoveResult{Project: p}, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	s.notifier.Notify(ChangeNotice{ProjectKey: p.Key, Type: HuMoved, Actor: actor.CC})
	return MoveResult{Moved: true, Project: p}, nil
}
