package importer

import (
	"strings"

	"github.com/conorfennell/lexicard/internal/domain"
)

// Spreadsheet exports often repeat their column titles as the first row.
var (
	headerTerms = set("word", "words", "term", "terms", "english", "vocab", "vocabulary", "单词", "英文", "词汇")

	headerTranslations = set("translation", "meaning", "definition", "chinese", "中文", "释义", "翻译")
	headerPhonetics    = set("phonetic", "phonetics", "ipa", "pronunciation", "音标")
	headerTags         = set("tag", "tags", "label", "labels", "标签")
)

func isHeader(row domain.RawRow, normalized string) bool {
	if headerTerms[normalized] || headerTerms[cell(row.Term)] {
		return true
	}
	return headerTranslations[cell(row.Translation)] ||
		headerPhonetics[cell(row.Phonetic)] ||
		headerTags[cell(row.TagsRaw)]
}

func cell(s string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(s), ":：."))
}

func set(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}
