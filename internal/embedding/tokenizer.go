package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// Special token ids shared by BERT-style vocabularies.
const (
	clsToken      = 101
	sepToken      = 102
	firstWordID   = 1000
	hashVocabSize = 30522
)

// Tokenizer produces the three input tensors of a BERT-style encoder.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// HashTokenizer maps each lowercased word to a stable id inside the model
// vocabulary range. It has no vocabulary file, so it is only a fallback for
// models exported without one.
type HashTokenizer struct{}

// Tokenize wraps the words of text in [CLS] ... [SEP] and pads to maxTokens.
func (HashTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens < 2 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0], attentionMask[0] = clsToken, 1
	pos := 1
	for _, w := range Words(text) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(firstWordID + hashWord(w)%(hashVocabSize-firstWordID))
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos], attentionMask[pos] = sepToken, 1
	return inputIDs, attentionMask, tokenTypeIDs
}

// Words lowercases text and splits it on anything that is not a letter or a
// digit, so "Kraków," and "kraków" give the same word.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func hashWord(w string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(w))
	return h.Sum32()
}
