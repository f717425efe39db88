package onnx

import (
	"fmt"
	"sync"

	hftok "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// specialLayouts are the special token sets a tokenizer.json can carry, in
// the order they are tried.
var specialLayouts = []struct {
	cls, sep, pad string
	pairSeps      int
}{
	{cls: "<s>", sep: "</s>", pad: "<pad>", pairSeps: 2},
	{cls: "[CLS]", sep: "[SEP]", pad: "[PAD]", pairSeps: 1},
}

// pretrainedEncoder encodes text with a HuggingFace tokenizer.json.
type pretrainedEncoder struct {
	mu sync.Mutex
	tk *hftok.Tokenizer
}

func (p *pretrainedEncoder) encode(text string) ([]int64, error) {
	if text == "" {
		return []int64{}, nil
	}
	p.mu.Lock()
	enc, err := p.tk.EncodeSingle(text, false)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("tokenizer: %w", err)
	}
	ids := make([]int64, len(enc.Ids))
	for i, id := range enc.Ids {
		ids[i] = int64(id)
	}
	return ids, nil
}

// newPretrainedTokenizer loads tokenizer.json and derives the pair layout
// from the special tokens in its vocabulary.
func newPretrainedTokenizer(path string) (*tokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: %w", err)
	}

	for _, l := range specialLayouts {
		cls, okCLS := tk.TokenToId(l.cls)
		sep, okSEP := tk.TokenToId(l.sep)
		if !okCLS || !okSEP {
			continue
		}
		pad, ok := tk.TokenToId(l.pad)
		if !ok {
			return nil, fmt.Errorf("tokenizer: %s has %s but no %s", path, l.cls, l.pad)
		}
		return &tokenizer{
			words:      &pretrainedEncoder{tk: tk},
			clsID:      int64(cls),
			sepID:      int64(sep),
			padID:      int64(pad),
			pairSeps:   l.pairSeps,
			maxLen:     maxSeqLen,
			hypotheses: newIDCache(hypothesisCacheSize),
		}, nil
	}
	return nil, fmt.Errorf("tokenizer: %s has neither <s>/</s> nor [CLS]/[SEP]", path)
}
