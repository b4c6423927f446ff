// Package moderation censors forbidden words in chat content before it
// is persisted and fanned out. Matching runs on a normalized view of the
// text (lowercased, leetspeak folded, punctuation stripped) so spaced or
// disguised spellings are still caught, while the original spacing of
// the message is preserved in the censored output.
package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"log/slog"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"

	"live-hub/errors"
)

type Moderator struct {
	matcher     *goahocorasick.Machine
	replacement rune
	log         *slog.Logger
}

// textMapping links each rune of the normalized text back to its index
// in the original, so a match span can be censored in place.
type textMapping struct {
	normalized []rune
	origIdx    []int
}

// NewModerator builds the Aho-Corasick automaton over the normalized
// word list. Words that normalize to nothing (pure punctuation) are
// skipped.
func NewModerator(words []string, replacement rune, log *slog.Logger) (Moderator, error) {
	var patterns [][]rune
	for _, word := range words {
		p := normalizeRunes([]rune(word))
		if len(p) == 0 {
			log.Debug("Skipping unusable censored word", "word", word)
			continue
		}
		patterns = append(patterns, p)
	}
	if len(patterns) == 0 {
		return Moderator{}, errors.ErrEmptyWords
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return Moderator{}, err
	}
	return Moderator{matcher: m, replacement: replacement, log: log}, nil
}

// Censor replaces every forbidden span with the replacement rune and
// returns the censored text together with the normalized words found,
// in match order. The original is returned untouched when nothing
// matches.
func (m *Moderator) Censor(original string) (string, []string) {
	mapping := normalize(original)
	if len(mapping.normalized) == 0 {
		return original, nil
	}

	spans := m.matcher.MultiPatternSearch(mapping.normalized, false)
	if len(spans) == 0 {
		return original, nil
	}

	origRunes := []rune(original)
	var found []string
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(mapping.origIdx) {
			continue
		}
		found = append(found, string(span.Word))

		origStart := mapping.origIdx[start]
		origEnd := mapping.origIdx[end-1] + 1
		for i := origStart; i < origEnd; i++ {
			origRunes[i] = m.replacement
		}
	}
	return string(origRunes), found
}

// normalize builds the searchable view of the input and tracks original
// rune positions.
func normalize(input string) textMapping {
	origRunes := []rune(input)
	mapping := textMapping{
		normalized: make([]rune, 0, len(origRunes)),
		origIdx:    make([]int, 0, len(origRunes)),
	}
	for i, r := range origRunes {
		clean := foldLeet(r)
		if isNoise(clean) {
			continue
		}
		mapping.normalized = append(mapping.normalized, unicode.ToLower(clean))
		mapping.origIdx = append(mapping.origIdx, i)
	}
	return mapping
}

func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := foldLeet(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// foldLeet maps common leetspeak characters back to their standard
// alphabet counterparts.
func foldLeet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

// isNoise identifies characters ignored during pattern matching.
func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}

// Wordlists is the parsed content of the embedded dictionaries.
type Wordlists struct {
	Words     []string
	Languages []string
}

// LoadWordlists reads every .txt dictionary in dir of the embedded
// filesystem. The filename stem is the language code ("en.txt" -> "en");
// duplicate words across languages are collapsed.
func LoadWordlists(fsys embed.FS, dir string) (*Wordlists, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	out := &Wordlists{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		out.Languages = append(out.Languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := fsys.ReadFile(dir + "/" + entry.Name())
		if err != nil {
			return nil, err
		}
		// Scanner handles \n and \r\n line endings alike.
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			word := strings.TrimSpace(scanner.Text())
			if word == "" || strings.HasPrefix(word, "#") {
				continue
			}
			out.Words = append(out.Words, word)
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}
	// Dictionaries can share words across languages
	out.Words = lo.Uniq(out.Words)
	if len(out.Words) == 0 {
		return nil, errors.ErrEmptyWords
	}
	return out, nil
}
