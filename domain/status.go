package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Canonical status keys of the board pipeline.
const (
	StatusBacklog      = "backlog"
	StatusPorHacer     = "por_hacer"
	StatusEnCurso      = "en_curso"
	StatusTest         = "test"
	StatusValidacionPO = "validacion_po"
	StatusFinalizado   = "finalizado"
)

// Lane describes one fixed board lane and the normalised spellings it accepts.
type Lane struct {
	Label  string
	Status string
	Keys   []string
}

var lanes = [...]Lane{
	{Label: "Backlog", Status: StatusBacklog, Keys: []string{"backlog"}},
	{Label: "Por Hacer", Status: StatusPorHacer, Keys: []string{"por_hacer", "todo"}},
	{Label: "En curso", Status: StatusEnCurso, Keys: []string{"en_curso", "in_progress"}},
	{Label: "Test", Status: StatusTest, Keys: []string{"test", "testing"}},
	{Label: "Validación PO", Status: StatusValidacionPO, Keys: []string{"validacion_po", "po"}},
	{Label: "Finalizado", Status: StatusFinalizado, Keys: []string{"finalizado", "done", "finished"}},
}

// NormalizeStatus folds a stored status into its comparable form: trimmed,
// lowercased, without diacritics, with whitespace and hyphen runs collapsed to "_".
func NormalizeStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	s = stripMarks(s)

	var b strings.Builder
	b.Grow(len(s))
	inSep := false
	for _, r := range s {
		if r == '-' || unicode.IsSpace(r) {
			if !inSep {
				b.WriteByte('_')
				inSep = true
			}
			continue
		}
		inSep = false
		b.WriteRune(r)
	}
	return b.String()
}

func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// LaneOf returns the canonical lane a status belongs to, or "" when no lane accepts it.
func LaneOf(status string) string {
	n := NormalizeStatus(status)
	for _, lane := range lanes {
		if lane.accepts(n) {
			return lane.Status
		}
	}
	return ""
}

// StatusLabel returns the human label of the lane the status belongs to.
// Unknown statuses are returned unchanged.
func StatusLabel(status string) string {
	n := NormalizeStatus(status)
	for _, lane := range lanes {
		if lane.accepts(n) {
			return lane.Label
		}
	}
	return status
}

func (c Lane) accepts(normalized string) bool {
	for _, k := range c.Keys {
		if k == normalized {
			return true
		}
	}
	return false
}
