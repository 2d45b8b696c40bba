package domain

import (
	"encoding"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidGrade = errors.New("invalid grade")
	ErrInvalidMode  = errors.New("invalid quiz mode")
)

// Grade is the learner's self-reported recall quality for one attempt.
type Grade int

const (
	Again Grade = iota + 1
	Hard
	Good
	Easy
)

var (
	gradeNames   = [...]string{Again: "again", Hard: "hard", Good: "good", Easy: "easy"}
	gradeQuality = [...]int{Again: 0, Hard: 3, Good: 4, Easy: 5}
)

var (
	_ fmt.Stringer             = Grade(0)
	_ encoding.TextMarshaler   = Grade(0)
	_ encoding.TextUnmarshaler = (*Grade)(nil)
)

// ParseGrade converts "again", "hard", "good" or "easy" (any case) to a Grade.
func ParseGrade(s string) (Grade, error) {
	var g Grade
	if err := g.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return g, nil
}

// IsValid reports whether g is one of Again through Easy.
func (g Grade) IsValid() bool {
	return g >= Again && g <= Easy
}

// Quality maps the grade onto the 0..5 recall quality scale.
func (g Grade) Quality() int {
	if !g.IsValid() {
		return 0
	}
	return gradeQuality[g]
}

// Correct reports whether the attempt counts as a successful recall.
func (g Grade) Correct() bool {
	return g.IsValid() && g != Again
}

func (g Grade) String() string {
	if g.IsValid() {
		return gradeNames[g]
	}
	return fmt.Sprintf("Grade(%d)", int(g))
}

func (g Grade) MarshalText() ([]byte, error) {
	if !g.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidGrade, int(g))
	}
	return []byte(gradeNames[g]), nil
}

func (g *Grade) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for i, n := range gradeNames {
		if n != "" && n == name {
			*g = Grade(i)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidGrade, text)
}

// QuizMode is the way a card is asked.
type QuizMode string

const (
	ModeTermToTranslation QuizMode = "term-to-translation"
	ModeTranslationToTerm QuizMode = "translation-to-term"
	ModePhonetic          QuizMode = "phonetic"
	ModeListen            QuizMode = "listen"
)

// ParseQuizMode validates s as a known quiz mode. The empty string is
// accepted and means "no preference".
func ParseQuizMode(s string) (QuizMode, error) {
	switch m := QuizMode(strings.TrimSpace(s)); m {
	case "", ModeTermToTranslation, ModeTranslationToTerm, ModePhonetic, ModeListen:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// SupportedModes lists the quiz modes the card's fields can back, in a fixed order.
// A term always supports listening; a translation enables both translation
// directions; a phonetic transcription enables the phonetic quiz.
func SupportedModes(c Card) []QuizMode {
	modes := make([]QuizMode, 0, 4)
	if c.Translation != "" {
		modes = append(modes, ModeTermToTranslation, ModeTranslationToTerm)
	}
	if c.Phonetic != "" {
		modes = append(modes, ModePhonetic)
	}
	if c.Term != "" {
		modes = append(modes, ModeListen)
	}
	return modes
}

// Supports reports whether the card can be asked in mode m.
func Supports(c Card, m QuizMode) bool {
	for _, s := range SupportedModes(c) {
		if s == m {
			return true
		}
	}
	return false
}
