package domain

import "strings"

// HU is a single work item on a project board.
type HU struct {
	ID          string `json:"hu"`
	Description string `json:"descripcion"`
	Status      string `json:"status"`
}

// Project is a board: an ordered list of HUs plus the identities allowed to see it.
// Items order is the display order within each status group.
type Project struct {
	Key    string   `json:"pro"`
	Name   string   `json:"projectName"`
	Items  []HU     `json:"hu"`
	Access []string `json:"accesos"`
}

// ProjectUpdate carries the replaceable fields of a project.
type ProjectUpdate struct {
	Name   string   `json:"projectName"`
	Items  []HU     `json:"hu"`
	Access []string `json:"accesos"`
}

// HasAccess reports whether cc is listed in the project's access list.
func (p Project) HasAccess(cc string) bool {
	cc = strings.TrimSpace(cc)
	if cc == "" {
		return false
	}
	for _, a := range p.Access {
		if strings.TrimSpace(a) == cc {
			return true
		}
	}
	return false
}

// Matches reports whether any searchable field contains term, case-insensitively.
func (p Project) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	has := func(s string) bool { return strings.Contains(strings.ToLower(s), term) }
	if has(p.Key) || has(p.Name) {
		return true
	}
	for _, a := range p.Access {
		if has(a) {
			return true
		}
	}
	for _, it := range p.Items {
		if has(it.ID) || has(it.Description) || has(it.Status) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can keep a pre-change snapshot.
func (p Project) Clone() Project {
	c := p
	c.Items = cloneItems(p.Items)
	if p.Access != nil {
		c.Access = append([]string(nil), p.Access...)
	}
	return c
}

func cloneItems(items []HU) []HU {
	if items == nil {
		return nil
	}
	return append([]HU(nil), items...)
}
