package domain

import "time"

// PolysemyTag marks a Card that is an additional sense of an already stored term.
const PolysemyTag = "polysemy"

// Card is one sense of a vocabulary term.
// The pair (Normalized, Digest) is its fingerprint.
type Card struct {
	ID          string    `json:"id"`
	Term        string    `json:"term"`
	Normalized  string    `json:"normalized"`
	Translation string    `json:"translation,omitempty"`
	Digest      string    `json:"digest"`
	Phonetic    string    `json:"phonetic,omitempty"`
	Tags        []string  `json:"tags"`
	Source      string    `json:"source"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Fingerprint identifies the intended sense of a card.
type Fingerprint struct {
	Normalized string
	Digest     string
}

// Fingerprint returns the card's (normalized term, digest) pair.
func (c Card) Fingerprint() Fingerprint {
	return Fingerprint{Normalized: c.Normalized, Digest: c.Digest}
}

// HasTag reports whether the card carries tag.
func (c Card) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// RawRow is one unprocessed row handed over by a format specific row parser.
type RawRow struct {
	Term        string `json:"term" validate:"max=200"`
	Translation string `json:"translation,omitempty" validate:"max=2000"`
	Phonetic    string `json:"phonetic,omitempty" validate:"max=200"`
	TagsRaw     string `json:"tags,omitempty" validate:"max=1000"`
	Notes       string `json:"notes,omitempty" validate:"max=4000"`
}

// ImportBatchRecord summarizes one committed import.
type ImportBatchRecord struct {
	ID            int64     `json:"id"`
	Source        string    `json:"source"`
	At            time.Time `json:"at"`
	NewCount      int       `json:"newCount"`
	UpdatedCount  int       `json:"updatedCount"`
	ConflictCount int       `json:"conflictCount"`
	SkippedCount  int       `json:"skippedCount"`
	ContentHash   string    `json:"contentHash,omitempty"`
	Notes         string    `json:"notes,omitempty"`
}

// ImportReport is returned to the caller of an import.
type ImportReport struct {
	BatchLabel    string   `json:"batchLabel"`
	NewCount      int      `json:"newCount"`
	UpdatedCount  int      `json:"updatedCount"`
	ConflictCount int      `json:"conflictCount"`
	SkippedCount  int      `json:"skippedCount"`
	Preview       []RawRow `json:"preview"`
	Warnings      []string `json:"warnings"`
}
