package domain

// Change notice types.
const (
	ProjectCreated = "project.created"
	ProjectUpdated = "project.updated"
	ProjectDeleted = "project.deleted"
	HuMoved        = "project.hu_moved"
)

// Actor identifies who performs an operation. Role is the raw claim value.
type Actor struct {
	CC   string
	Role string
}

// ChangeNotice announces that a project changed.
type ChangeNotice struct {
	ID         string `json:"id"`
	ProjectKey string `json:"pro"`
	Type       string `json:"type"`
	Actor      string `json:"actor"`
	Timestamp  int64  `json:"timestamp"`
}

// Notifier receives change notices after a successful write. Implementations
// must not block the caller for long and never fail the originating request.
type Notifier interface {
	Notify(n ChangeNotice)
}

type noopNotifier struct{}

func (noopNotifier) Notify(ChangeNotice) {}

func notifierOrNoop(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}
