package domain

// Column is one projected board lane. It is derived from Project.Items and never stored.
type Column struct {
	Label   string `json:"title"`
	Status  string `json:"statusValue"`
	Cards   []HU   `json:"cards"`
	CanDrag bool   `json:"canDrag"`
}

// Board is the column projection of a project for one role.
type Board struct {
	ProjectKey       string   `json:"pro"`
	ProjectName      string   `json:"projectName"`
	CanEdit          bool     `json:"canEdit"`
	CanEditHuSection bool     `json:"canEditHuSection"`
	Columns          []Column `json:"columns"`
}

// MoveEvent describes a drag and drop of one card.
type MoveEvent struct {
	ItemID           string `json:"hu"`
	ItemDescription  string `json:"descripcion"`
	FromStatus       string `json:"fromStatus"`
	ToStatus         string `json:"toStatus"`
	SourceIndex      int    `json:"previousIndex"`
	DestinationIndex int    `json:"currentIndex"`
}

// BuildColumns projects the project's items into the six fixed lanes. Items
// whose status matches no lane appear in none of them.
func BuildColumns(p *Project) []Column {
	cols := make([]Column, len(lanes))
	for i, lane := range lanes {
		cols[i] = Column{Label: lane.Label, Status: lane.Status, Cards: []HU{}}
	}
	if p == nil {
		return cols
	}
	for _, it := range p.Items {
		n := NormalizeStatus(it.Status)
		for i := range lanes {
			if lanes[i].accepts(n) {
				cols[i].Cards = append(cols[i].Cards, it)
				break
			}
		}
	}
	return cols
}

// BuildBoard projects the project and annotates the lanes with the role's drag rights.
func BuildBoard(p *Project, role string) Board {
	canEdit := CanEditBoard(role)
	b := Board{
		CanEdit:          canEdit,
		CanEditHuSection: CanEditProjectHuSection(role),
		Columns:          BuildColumns(p),
	}
	if p != nil {
		b.ProjectKey = p.Key
		b.ProjectName = p.Name
	}
	for i := range b.Columns {
		b.Columns[i].CanDrag = CanDragFromStatus(role, b.Columns[i].Status, canEdit)
	}
	return b
}

// ComputeMove returns the item list after applying ev. It reports false when
// there is nothing to persist: the statuses normalise equal or the item is not
// found. items is not modified.
func ComputeMove(items []HU, ev MoveEvent) ([]HU, bool) {
	from := NormalizeStatus(ev.FromStatus)
	to := NormalizeStatus(ev.ToStatus)
	if from == to {
		return nil, false
	}

	idx := findItem(items, ev)
	if idx < 0 {
		return nil, false
	}

	moved := items[idx]
	moved.Status = ev.ToStatus

	rest := make([]HU, 0, len(items))
	rest = append(rest, items[:idx]...)
	rest = append(rest, items[idx+1:]...)

	var group []int
	for i, it := range rest {
		if NormalizeStatus(it.Status) == to {
			group = append(group, i)
		}
	}

	at := len(rest)
	switch {
	case len(group) == 0:
	case ev.DestinationIndex <= 0:
		at = group[0]
	case ev.DestinationIndex >= len(group):
		at = group[len(group)-1] + 1
	default:
		at = group[ev.DestinationIndex]
	}

	out := make([]HU, 0, len(items))
	out = append(out, rest[:at]...)
	out = append(out, moved)
	out = append(out, rest[at:]...)
	return out, true
}

// findItem locates the item ev refers to: first by id, description and
// normalised source status, then by id and description alone. It returns -1
// when no item matches.
func findItem(items []HU, ev MoveEvent) int {
	from := NormalizeStatus(ev.FromStatus)
	for i, it := range items {
		if it.ID == ev.ItemID && it.Description == ev.ItemDescription && NormalizeStatus(it.Status) == from {
			return i
		}
	}
	// The view may carry a slightly different status spelling than the stored one.
	for i, it := range items {
		if it.ID == ev.ItemID && it.Description == ev.ItemDescription {
			return i
		}
	}
	return -1
}
