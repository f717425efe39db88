package onnx

import (
	"fmt"
	"os"
	"path/filepath"
)

// maxSeqLen is the position embedding limit of BERT/RoBERTa cross-encoders.
const maxSeqLen = 512

// encoding holds tokenized sequences packed for ONNX inference. All slices
// are flat: [batchSize * seqLen].
type encoding struct {
	inputIDs      []int64
	attentionMask []int64
	tokenTypeIDs  []int64
	batchSize     int64
	seqLen        int64
}

// subwordEncoder turns raw text into token IDs without special tokens.
type subwordEncoder interface {
	encode(text string) ([]int64, error)
}

// tokenizer lays encoded text out the way the model was trained:
// BERT uses [CLS] a [SEP] b [SEP], RoBERTa uses <s> a </s></s> b </s>.
type tokenizer struct {
	words subwordEncoder
	clsID int64
	sepID int64
	padID int64
	// pairSeps is the number of separators between the two sequences of a pair.
	pairSeps int
	maxLen   int

	// hypotheses repeat across requests since labels do.
	hypotheses *idCache
}

// newTokenizer builds a WordPiece tokenizer from a BERT vocab.txt.
func newTokenizer(vocabPath string, lowercase bool) (*tokenizer, error) {
	v, err := loadVocab(vocabPath)
	if err != nil {
		return nil, err
	}
	return &tokenizer{
		words:      &wordpiece{vocab: v, lowercase: lowercase},
		clsID:      v.clsID,
		sepID:      v.sepID,
		padID:      v.padID,
		pairSeps:   1,
		maxLen:     maxSeqLen,
		hypotheses: newIDCache(hypothesisCacheSize),
	}, nil
}

// loadTokenizer picks the tokenizer from the files present in dir. vocab.txt
// means WordPiece; otherwise tokenizer.json is loaded as a pretrained
// HuggingFace tokenizer.
func loadTokenizer(dir string) (*tokenizer, error) {
	if fileExists(filepath.Join(dir, vocabFile)) {
		return newTokenizer(filepath.Join(dir, vocabFile), loadLowercase(dir))
	}
	if fileExists(filepath.Join(dir, tokenizerJSONFile)) {
		return newPretrainedTokenizer(filepath.Join(dir, tokenizerJSONFile))
	}
	return nil, fmt.Errorf("tokenizer: %s has neither %s nor %s", dir, vocabFile, tokenizerJSONFile)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (t *tokenizer) ids(text string) ([]int64, error) {
	return t.words.encode(text)
}

// hypothesisIDs is ids served through the hypothesis cache.
func (t *tokenizer) hypothesisIDs(text string) ([]int64, error) {
	if ids, ok := t.hypotheses.get(text); ok {
		return ids, nil
	}
	ids, err := t.ids(text)
	if err != nil {
		return nil, err
	}
	t.hypotheses.put(text, ids)
	return ids, nil
}

// single builds CLS a SEP, truncating a to fit maxLen.
func (t *tokenizer) single(a []int64) (ids, typeIDs []int64) {
	if limit := t.maxLen - 2; len(a) > limit {
		a = a[:limit]
	}
	ids = make([]int64, 0, len(a)+2)
	ids = append(ids, t.clsID)
	ids = append(ids, a...)
	ids = append(ids, t.sepID)
	return ids, make([]int64, len(ids))
}

// pair builds CLS a SEP [SEP] b SEP with segment IDs 0 for the first part and
// 1 for the second. Only a is truncated; b is cut only if it cannot fit alone.
func (t *tokenizer) pair(a, b []int64) (ids, typeIDs []int64) {
	budget := t.maxLen - 2 - t.pairSeps
	if len(b) > budget {
		b = b[:budget]
	}
	if len(a)+len(b) > budget {
		a = a[:budget-len(b)]
	}

	ids = make([]int64, 0, len(a)+len(b)+2+t.pairSeps)
	ids = append(ids, t.clsID)
	ids = append(ids, a...)
	for i := 0; i < t.pairSeps; i++ {
		ids = append(ids, t.sepID)
	}
	first := len(ids)
	ids = append(ids, b...)
	ids = append(ids, t.sepID)

	typeIDs = make([]int64, len(ids))
	for i := first; i < len(ids); i++ {
		typeIDs[i] = 1
	}
	return ids, typeIDs
}

// pack pads sequences to the longest one and flattens them into an encoding.
func (t *tokenizer) pack(seqs, types [][]int64) *encoding {
	n := len(seqs)
	if n == 0 {
		return &encoding{}
	}
	seqLen := 0
	for _, s := range seqs {
		if len(s) > seqLen {
			seqLen = len(s)
		}
	}

	total := n * seqLen
	enc := &encoding{
		inputIDs:      make([]int64, total),
		attentionMask: make([]int64, total),
		tokenTypeIDs:  make([]int64, total),
		batchSize:     int64(n),
		seqLen:        int64(seqLen),
	}
	for i, s := range seqs {
		off := i * seqLen
		for j := 0; j < seqLen; j++ {
			if j < len(s) {
				enc.inputIDs[off+j] = s[j]
				enc.attentionMask[off+j] = 1
				enc.tokenTypeIDs[off+j] = types[i][j]
			} else {
				enc.inputIDs[off+j] = t.padID
			}
		}
	}
	return enc
}

// encodePairs tokenizes premise once and pairs it with every hypothesis.
func (t *tokenizer) encodePairs(premise string, hypotheses []string) (*encoding, error) {
	p, err := t.ids(premise)
	if err != nil {
		return nil, err
	}
	seqs := make([][]int64, len(hypotheses))
	types := make([][]int64, len(hypotheses))
	for i, h := range hypotheses {
		hids, err := t.hypothesisIDs(h)
		if err != nil {
			return nil, err
		}
		seqs[i], types[i] = t.pair(p, hids)
	}
	return t.pack(seqs, types), nil
}

func (t *tokenizer) encodeBatch(texts []string) (*encoding, error) {
	seqs := make([][]int64, len(texts))
	types := make([][]int64, len(texts))
	for i, text := range texts {
		ids, err := t.ids(text)
		if err != nil {
			return nil, err
		}
		seqs[i], types[i] = t.single(ids)
	}
	return t.pack(seqs, types), nil
}
