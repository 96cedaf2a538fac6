package diagnosis

import (
	"context"
	"math/rand"
	"strings"
	"sync"
)

// Label is a lesion class produced by the image classifier.
type Label string

const (
	ActinicKeratosis   Label = "Actinic Keratosis (akiec)"
	BasalCellCarcinoma Label = "Basal Cell Carcinoma (bcc)"
	BenignKeratosis    Label = "Benign Keratosis (bkl)"
	Dermatofibroma     Label = "Dermatofibroma (df)"
	Melanoma           Label = "Melanoma (mel)"
	MelanocyticNevus   Label = "Melanocytic Nevus (nv)"
	VascularLesion     Label = "Vascular Lesion (vasc)"
)

// Labels lists every class in classifier output order.
var Labels = []Label{
	ActinicKeratosis,
	BasalCellCarcinoma,
	BenignKeratosis,
	Dermatofibroma,
	Melanoma,
	MelanocyticNevus,
	VascularLesion,
}

// Code returns the short class code, e.g. "mel".
func (l Label) Code() string {
	s := string(l)
	open := strings.LastIndexByte(s, '(')
	end := strings.LastIndexByte(s, ')')
	if open < 0 || end <= open {
		return ""
	}
	return s[open+1 : end]
}

// ParseLabel accepts a full label or its short code, case-insensitively.
func ParseLabel(s string) (Label, bool) {
	s = strings.TrimSpace(s)
	for _, l := range Labels {
		if strings.EqualFold(s, string(l)) || strings.EqualFold(s, l.Code()) {
			return l, true
		}
	}
	return "", false
}

// Classifier assigns a lesion label to an uploaded image.
type Classifier interface {
	Classify(ctx context.Context, image []byte) (Label, error)
}

// RandomClassifier picks a label uniformly. It stands in until a trained
// model is deployed.
type RandomClassifier struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRandomClassifier(rnd *rand.Rand) *RandomClassifier {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(rand.Int63()))
	}
	return &RandomClassifier{rnd: rnd}
}

func (c *RandomClassifier) Classify(ctx context.Context, _ []byte) (Label, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Labels[c.rnd.Intn(len(Labels))], nil
}
