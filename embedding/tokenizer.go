package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// ContextLength is the fixed token window fed to the text encoder.
const ContextLength = 77

// Tokenizer maps text to a padded window of token ids. Id 0 is padding, the
// two highest ids are the start and end markers, and words hash into the rest.
type Tokenizer struct {
	vocab int
}

func NewTokenizer(vocabSize int) *Tokenizer {
	if vocabSize < 4 {
		vocabSize = 4
	}
	return &Tokenizer{vocab: vocabSize}
}

func (t *Tokenizer) StartToken() int { return t.vocab - 2 }
func (t *Tokenizer) EndToken() int   { return t.vocab - 1 }
func (t *Tokenizer) VocabSize() int  { return t.vocab }

// Encode returns exactly ContextLength ids: start, words, end, then padding.
// Words past the window are dropped.
func (t *Tokenizer) Encode(text string) []int {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) > ContextLength-2 {
		words = words[:ContextLength-2]
	}

	ids := make([]int, ContextLength)
	ids[0] = t.StartToken()
	for i, w := range words {
		ids[i+1] = t.wordID(w)
	}
	ids[len(words)+1] = t.EndToken()
	return ids
}

func (t *Tokenizer) wordID(w string) int {
	h := fnv.New32a()
	h.Write([]byte(w))
	return 1 + int(h.Sum32()%uint32(t.vocab-3))
}
