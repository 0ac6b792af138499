package queryengine

import (
	"encoding/json"
	"math"
	"os"

	"github.com/pkg/errors"

	"github.com/freshcoop/coopchat/server/nlp"
)

// Model is the opaque statistical fallback: a pre-trained classifier
// scoring all intents over a normalized utterance. Absence degrades the
// classifier to rule-only operation, it never crashes the engine.
type Model interface {
	// Predict returns the top label with its probability.
	Predict(normalized string) (Intent, float64, error)
	// Version identifies the loaded artifact for logs.
	Version() string
}

// bayesArtifact 离线训练产出的朴素贝叶斯模型工件，版本化 JSON
// 特征为 nlp.Tokenize 的词元（汉字单/双字元 + 拉丁词）
type bayesArtifact struct {
	ArtifactVersion string         `json:"version"`
	Labels          []string       `json:"labels"`
	Vocabulary      map[string]int `json:"vocabulary"`
	ClassLogPrior   []float64      `json:"class_log_prior"`
	FeatureLogProb  [][]float64    `json:"feature_log_prob"`
	UnseenLogProb   []float64      `json:"unseen_log_prob"`
}

// BayesModel is the multinomial naive Bayes implementation of Model.
type BayesModel struct {
	art bayesArtifact
}

// LoadBayesModel reads the artifact from disk. Callers treat any error
// as a degrade-to-rules signal, not a startup failure.
func LoadBayesModel(path string) (*BayesModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read model artifact")
	}
	return ParseBayesModel(data)
}

// ParseBayesModel decodes and validates an artifact payload.
func ParseBayesModel(data []byte) (*BayesModel, error) {
	var art bayesArtifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, errors.Wrap(err, "decode model artifact")
	}
	if len(art.Labels) == 0 {
		return nil, errors.New("model artifact has no labels")
	}
	if len(art.ClassLogPrior) != len(art.Labels) ||
		len(art.FeatureLogProb) != len(art.Labels) ||
		len(art.UnseenLogProb) != len(art.Labels) {
		return nil, errors.Errorf("model artifact shape mismatch: %d labels", len(art.Labels))
	}
	for i, row := range art.FeatureLogProb {
		if len(row) != len(art.Vocabulary) {
			return nil, errors.Errorf("model artifact row %d has %d features, want %d",
				i, len(row), len(art.Vocabulary))
		}
	}
	return &BayesModel{art: art}, nil
}

func (m *BayesModel) Version() string { return m.art.ArtifactVersion }

// Predict scores every label and softmaxes the joint log-likelihoods
// into a probability for the winner.
func (m *BayesModel) Predict(normalized string) (Intent, float64, error) {
	tokens := nlp.Tokenize(normalized)
	if len(tokens) == 0 {
		return IntentUnknown, 0, errors.New("empty input")
	}

	scores := make([]float64, len(m.art.Labels))
	copy(scores, m.art.ClassLogPrior)
	for _, tok := range tokens {
		idx, known := m.art.Vocabulary[tok]
		for i := range scores {
			if known {
				scores[i] += m.art.FeatureLogProb[i][idx]
			} else {
				scores[i] += m.art.UnseenLogProb[i]
			}
		}
	}

	best, max := 0, scores[0]
	for i, s := range scores {
		if s > max {
			best, max = i, s
		}
	}

	// softmax 归一化，数值上先减最大值
	var sum float64
	for _, s := range scores {
		sum += math.Exp(s - max)
	}
	prob := 1 / sum

	return Intent(m.art.Labels[best]), prob, nil
}
