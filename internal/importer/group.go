package importer

import (
	"strings"
	"time"

	"github.com/conorfennell/lexicard/internal/domain"
	"github.com/conorfennell/lexicard/internal/fingerprint"
)

// group collects the rows of one batch that share a fingerprint.
type group struct {
	fp          domain.Fingerprint
	term        string
	translation string
	phonetic    string
	notes       string
	tags        []string
	rows        int
}

func newGroup(fp domain.Fingerprint, row domain.RawRow) *group {
	g := &group{fp: fp, term: strings.TrimSpace(row.Term)}
	g.add(row)
	return g
}

// add merges a row: tags are unioned, and the earliest non-empty value of
// every other field wins.
func (g *group) add(row domain.RawRow) {
	g.rows++
	g.tags = fingerprint.MergeTags(g.tags, fingerprint.ParseTags(row.TagsRaw))
	if g.translation == "" {
		g.translation = fingerprint.CanonicalTranslation(row.Translation)
	}
	if g.phonetic == "" {
		g.phonetic = strings.TrimSpace(row.Phonetic)
	}
	if g.notes == "" {
		g.notes = strings.TrimSpace(row.Notes)
	}
}

func (g *group) newCard(id, source string, now time.Time) domain.Card {
	return domain.Card{
		ID:          id,
		Term:        g.term,
		Normalized:  g.fp.Normalized,
		Translation: g.translation,
		Digest:      g.fp.Digest,
		Phonetic:    g.phonetic,
		Tags:        fingerprint.MergeTags(nil, g.tags),
		Source:      source,
		Notes:       g.notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// mergeInto folds the group into an existing card with the same fingerprint.
// Only fields the card lacks are filled in.
func (g *group) mergeInto(c domain.Card, now time.Time) domain.Card {
	c.Tags = fingerprint.MergeTags(c.Tags, g.tags)
	if c.Translation == "" {
		c.Translation = g.translation
	}
	if c.Phonetic == "" {
		c.Phonetic = g.phonetic
	}
	if c.Notes == "" {
		c.Notes = g.notes
	}
	c.UpdatedAt = now
	return c
}
