package onnx

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// vocab is a BERT vocab.txt: one token per line, the line index is its ID.
type vocab struct {
	ids    map[string]int64
	tokens []string

	padID, unkID, clsID, sepID int64
}

func loadVocab(path string) (*vocab, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("vocab: " + path + " is empty")
	}
	lines := strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")

	v := &vocab{ids: make(map[string]int64, len(lines)), tokens: lines}
	for i := len(lines) - 1; i >= 0; i-- {
		// first occurrence wins for duplicated lines
		lines[i] = strings.TrimSuffix(lines[i], "\r")
		v.ids[lines[i]] = int64(i)
	}

	var missing []string
	special := func(tok string) int64 {
		id, ok := v.ids[tok]
		if !ok {
			missing = append(missing, tok)
		}
		return id
	}
	v.padID = special("[PAD]")
	v.unkID = special("[UNK]")
	v.clsID = special("[CLS]")
	v.sepID = special("[SEP]")
	if len(missing) > 0 {
		return nil, fmt.Errorf("vocab: %s lacks %s", path, strings.Join(missing, ", "))
	}
	return v, nil
}

// lookup falls back to [UNK].
func (v *vocab) lookup(tok string) int64 {
	if id, ok := v.ids[tok]; ok {
		return id
	}
	return v.unkID
}

func (v *vocab) contains(tok string) bool {
	_, ok := v.ids[tok]
	return ok
}

func (v *vocab) size() int {
	return len(v.tokens)
}
