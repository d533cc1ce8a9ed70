package override

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/orgmap/internal/model"
)

// Answers are the choice IDs a person confirmed. An empty answer leaves that
// part of the mapping as the classifier produced it.
type Answers struct {
	Household string `yaml:"household" json:"household,omitempty"`
	Advisor   string `yaml:"advisor" json:"advisor,omitempty"`
	AUM       string `yaml:"aum" json:"aum,omitempty"`
}

// Empty reports whether no answer was given.
func (a Answers) Empty() bool {
	return a.Household == "" && a.Advisor == "" && a.AUM == ""
}

func (a Answers) normalized() Answers {
	return Answers{
		Household: strings.TrimSpace(a.Household),
		Advisor:   strings.TrimSpace(a.Advisor),
		AUM:       strings.TrimSpace(a.AUM),
	}
}

// ParseAnswers decodes answers from YAML. Unknown keys are rejected so a
// typo never silently drops an answer.
func ParseAnswers(data []byte) (Answers, error) {
	var a Answers
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&a); err != nil && !errors.Is(err, io.EOF) {
		return Answers{}, eris.Wrap(model.NewValidationError("answers", err.Error()), "override: parse answers")
	}
	return a.normalized(), nil
}

// LoadAnswers reads answers from a YAML file.
func LoadAnswers(path string) (Answers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Answers{}, eris.Wrapf(err, "override: read answers %s", path)
	}
	return ParseAnswers(data)
}
