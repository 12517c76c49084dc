package assistant

import (
	"context"
	"fmt"
	"strings"
)

// Intent is the closed set of things a message can ask for.
type Intent int

const (
	IntentOther Intent = iota
	IntentRecommendation
	IntentDetails
	IntentReviews
	IntentHours
	IntentHelp
	IntentGoodbye
)

func (i Intent) String() string {
	switch i {
	case IntentRecommendation:
		return "recommendation"
	case IntentDetails:
		return "details"
	case IntentReviews:
		return "reviews"
	case IntentHours:
		return "hours"
	case IntentHelp:
		return "help"
	case IntentGoodbye:
		return "goodbye"
	default:
		return "other"
	}
}

// Label binds a classifier label to the intent it dispatches to.
type Label struct {
	Name   string
	Intent Intent
}

// LabelSet is the ordered list of labels offered to the classifier. Order is
// passed through to the capability unchanged.
type LabelSet []Label

var (
	BasicLabels = LabelSet{
		{Name: "recommendation", Intent: IntentRecommendation},
		{Name: "details", Intent: IntentDetails},
		{Name: "other", Intent: IntentOther},
	}

	ExtendedLabels = LabelSet{
		{Name: "recommend", Intent: IntentRecommendation},
		{Name: "details", Intent: IntentDetails},
		{Name: "reviews", Intent: IntentReviews},
		{Name: "hours", Intent: IntentHours},
		{Name: "help", Intent: IntentHelp},
		{Name: "goodbye", Intent: IntentGoodbye},
		{Name: "chitchat", Intent: IntentOther},
		{Name: "other", Intent: IntentOther},
	}
)

func LabelSetByName(name string) (LabelSet, error) {
	switch name {
	case "", "basic":
		return BasicLabels, nil
	case "extended":
		return ExtendedLabels, nil
	default:
		return nil, fmt.Errorf("unknown label set %q", name)
	}
}

func (s LabelSet) Names() []string {
	names := make([]string, len(s))
	for i, l := range s {
		names[i] = l.Name
	}
	return names
}

// Resolve maps a label to its intent. Labels outside the set are Other.
func (s LabelSet) Resolve(label string) Intent {
	label = strings.ToLower(strings.TrimSpace(label))
	for _, l := range s {
		if l.Name == label {
			return l.Intent
		}
	}
	return IntentOther
}

// IntentClassifier asks a zero-shot capability for the best label.
type IntentClassifier struct {
	capability ZeroShotClassifier
	labels     LabelSet
}

func NewIntentClassifier(capability ZeroShotClassifier, labels LabelSet) *IntentClassifier {
	return &IntentClassifier{capability: capability, labels: labels}
}

// Classify returns the top label and its intent. A capability error, or an
// empty ranking, is returned wrapped in ErrClassifier.
func (c *IntentClassifier) Classify(ctx context.Context, message string) (string, Intent, error) {
	ranked, err := c.capability.Classify(ctx, message, c.labels.Names())
	if err != nil {
		return "", IntentOther, fmt.Errorf("%w: %v", ErrClassifier, err)
	}
	if len(ranked) == 0 {
		return "", IntentOther, fmt.Errorf("%w: empty ranking", ErrClassifier)
	}

	top := ranked[0]
	for _, ls := range ranked[1:] {
		if ls.Score > top.Score {
			top = ls
		}
	}
	return top.Label, c.labels.Resolve(top.Label), nil
}

func (i Intent) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}
