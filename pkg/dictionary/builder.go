package dictionary

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// CollisionPolicy decides which term keeps an alias claimed by more than one term.
type CollisionPolicy int

const (
	// CollisionLastWins hands the alias to the term that appears later in the input.
	CollisionLastWins CollisionPolicy = iota
	// CollisionFirstWins keeps the alias on the term that claimed it first.
	CollisionFirstWins
	// CollisionReject keeps the first owner and reports every later claim as a warning.
	CollisionReject
)

func (p CollisionPolicy) String() string {
	switch p {
	case CollisionLastWins:
		return "last-wins"
	case CollisionFirstWins:
		return "first-wins"
	case CollisionReject:
		return "reject"
	default:
		return "unknown"
	}
}

// ParseCollisionPolicy maps a config string onto a CollisionPolicy.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last-wins", "last":
		return CollisionLastWins, nil
	case "first-wins", "first":
		return CollisionFirstWins, nil
	case "reject":
		return CollisionReject, nil
	default:
		return CollisionLastWins, fmt.Errorf("invalid collision policy: %s", s)
	}
}

// BuildOptions configures Build.
type BuildOptions struct {
	Collision CollisionPolicy
}

// Warning describes a record or alias that Build skipped.
type Warning struct {
	Index  int // position of the record in the input slice
	TermID string
	Reason string
}

func (w Warning) String() string {
	if w.TermID == "" {
		return fmt.Sprintf("record %d: %s", w.Index, w.Reason)
	}
	return fmt.Sprintf("record %d (%s): %s", w.Index, w.TermID, w.Reason)
}

// Dictionary is an immutable lookup from lowercased canonical terms and aliases to terms.
type Dictionary struct {
	terms    []Term
	byID     map[string]int
	index    map[string]string // lowercased alias -> term id
	forms    map[string]string // lowercased alias -> display form
	aliases  []string          // display form of every key, longest first
	warnings []Warning
}

// keyOwner tracks who holds an index key and whether it is that term's canonical name.
type keyOwner struct {
	termID    string
	canonical bool
	display   string
}

// Build normalizes raw term records into a Dictionary. It never fails as a whole:
// malformed records and conflicting aliases are skipped and reported through Warnings.
func Build(records []Term, opts BuildOptions) *Dictionary {
	d := &Dictionary{
		byID:  make(map[string]int),
		index: make(map[string]string),
		forms: make(map[string]string),
	}
	owners := make(map[string]keyOwner)

	for i, rec := range records {
		t, reason := normalizeTerm(rec)
		if reason != "" {
			d.warnings = append(d.warnings, Warning{Index: i, TermID: rec.ID, Reason: reason})
			continue
		}
		if _, dup := d.byID[t.ID]; dup {
			d.warnings = append(d.warnings, Warning{Index: i, TermID: t.ID, Reason: "duplicate term id"})
			continue
		}

		// Drop blank aliases but keep the record.
		kept := t.Aliases[:0:0]
		for _, a := range t.Aliases {
			if strings.TrimSpace(a) == "" {
				d.warnings = append(d.warnings, Warning{Index: i, TermID: t.ID, Reason: "empty alias dropped"})
				continue
			}
			kept = append(kept, strings.TrimSpace(a))
		}
		t.Aliases = kept

		d.byID[t.ID] = len(d.terms)
		d.terms = append(d.terms, t)

		d.claim(owners, i, t.ID, t.Term, true, opts.Collision)
		for _, a := range t.Aliases {
			d.claim(owners, i, t.ID, a, false, opts.Collision)
		}
	}

	for key, o := range owners {
		d.index[key] = o.termID
		d.forms[key] = o.display
		d.aliases = append(d.aliases, o.display)
	}
	sortLongestFirst(d.aliases)
	return d
}

func (d *Dictionary) claim(owners map[string]keyOwner, idx int, termID, name string, canonical bool, policy CollisionPolicy) {
	key := strings.ToLower(name)
	prev, taken := owners[key]
	if !taken || prev.termID == termID {
		if taken && prev.canonical && !canonical {
			return // the canonical spelling already covers this key
		}
		owners[key] = keyOwner{termID: termID, canonical: canonical, display: name}
		return
	}

	switch {
	case policy == CollisionLastWins && !(prev.canonical && !canonical):
		owners[key] = keyOwner{termID: termID, canonical: canonical, display: name}
		d.warnings = append(d.warnings, Warning{Index: idx, TermID: termID,
			Reason: fmt.Sprintf("alias %q taken over from term %s", name, prev.termID)})
	case policy == CollisionReject:
		d.warnings = append(d.warnings, Warning{Index: idx, TermID: termID,
			Reason: fmt.Sprintf("alias %q rejected: already owned by term %s", name, prev.termID)})
	default:
		d.warnings = append(d.warnings, Warning{Index: idx, TermID: termID,
			Reason: fmt.Sprintf("alias %q ignored: already owned by term %s", name, prev.termID)})
	}
}

func normalizeTerm(t Term) (Term, string) {
	t.ID = strings.TrimSpace(t.ID)
	t.Term = strings.TrimSpace(t.Term)
	t.Definition = strings.TrimSpace(t.Definition)
	t.Difficulty = strings.ToLower(strings.TrimSpace(t.Difficulty))

	switch {
	case t.ID == "":
		return t, "missing id"
	case t.Term == "":
		return t, "missing term"
	case t.Definition == "":
		return t, "missing definition"
	case !utf8.ValidString(t.Term):
		return t, "term is not valid UTF-8"
	}
	switch t.Difficulty {
	case "", DifficultyBasic, DifficultyAdvanced:
	default:
		return t, fmt.Sprintf("unknown difficulty %q", t.Difficulty)
	}
	t.Aliases = append([]string(nil), t.Aliases...)
	return t, ""
}

// sortLongestFirst orders by rune length descending, then lexicographically so
// equal-length aliases always come out in the same order.
func sortLongestFirst(aliases []string) {
	sort.Slice(aliases, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(aliases[i]), utf8.RuneCountInString(aliases[j])
		if li != lj {
			return li > lj
		}
		return strings.ToLower(aliases[i]) < strings.ToLower(aliases[j])
	})
}

// Lookup resolves a canonical term or alias, ignoring case.
func (d *Dictionary) Lookup(name string) (Term, bool) {
	id, ok := d.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Term{}, false
	}
	return d.terms[d.byID[id]], true
}

// Resolve is Lookup that also returns the display form of the key that matched,
// e.g. "Root Canal" for the input "root canal".
func (d *Dictionary) Resolve(name string) (Term, string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	id, ok := d.index[key]
	if !ok {
		return Term{}, "", false
	}
	return d.terms[d.byID[id]], d.forms[key], true
}

// ByID returns the term with the given id.
func (d *Dictionary) ByID(id string) (Term, bool) {
	i, ok := d.byID[id]
	if !ok {
		return Term{}, false
	}
	return d.terms[i], true
}

// Terms returns the accepted terms in input order.
func (d *Dictionary) Terms() []Term {
	return append([]Term(nil), d.terms...)
}

// Aliases returns every lookup key in its display form, longest first.
func (d *Dictionary) Aliases() []string {
	return append([]string(nil), d.aliases...)
}

// Warnings returns the problems collected while building.
func (d *Dictionary) Warnings() []Warning {
	return append([]Warning(nil), d.warnings...)
}

// Len returns the number of accepted terms.
func (d *Dictionary) Len() int { return len(d.terms) }
