package onnx

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Files expected inside a model directory.
const (
	modelFile           = "model.onnx"
	vocabFile           = "vocab.txt"
	tokenizerJSONFile   = "tokenizer.json"
	configFile          = "config.json"
	tokenizerConfigFile = "tokenizer_config.json"
	libFile             = "libonnxruntime.so"
)

type modelConfig struct {
	ID2Label map[string]string `json:"id2label"`
	Label2ID map[string]int    `json:"label2id"`
}

type tokenizerConfig struct {
	DoLowerCase *bool `json:"do_lower_case"`
}

// entailmentIndex finds the class index whose label starts with "entail",
// preferring label2id and falling back to id2label.
func (c *modelConfig) entailmentIndex() (int, error) {
	for label, id := range c.Label2ID {
		if strings.HasPrefix(strings.ToLower(label), "entail") {
			return id, nil
		}
	}
	keys := make([]string, 0, len(c.ID2Label))
	for k := range c.ID2Label {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.HasPrefix(strings.ToLower(c.ID2Label[k]), "entail") {
			id, err := strconv.Atoi(k)
			if err != nil {
				return 0, fmt.Errorf("config: bad id2label key %q: %w", k, err)
			}
			return id, nil
		}
	}
	return 0, errors.New("config: no entailment label in id2label/label2id")
}

func loadModelConfig(dir string) (*modelConfig, error) {
	raw, err := os.ReadFile(filepath.Join(dir, configFile))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var cfg modelConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// loadLowercase reads do_lower_case from tokenizer_config.json, defaulting to
// true (uncased BERT) when the file or field is missing.
func loadLowercase(dir string) bool {
	raw, err := os.ReadFile(filepath.Join(dir, tokenizerConfigFile))
	if err != nil {
		return true
	}
	var cfg tokenizerConfig
	if err := json.Unmarshal(raw, &cfg); err != nil || cfg.DoLowerCase == nil {
		return true
	}
	return *cfg.DoLowerCase
}
