package assistant

import "strings"

// EntityType names the kinds of entities the extractor understands.
type EntityType string

const EntityRestaurantName EntityType = "restaurant_name"

// EntityExtractor finds a known restaurant name mentioned literally in text.
// It is a case-insensitive substring match over the vocabulary; when several
// names match, the earliest in vocabulary order wins.
type EntityExtractor struct {
	names   []string
	lowered []string
}

func NewEntityExtractor(vocabulary []string) *EntityExtractor {
	e := &EntityExtractor{
		names:   make([]string, 0, len(vocabulary)),
		lowered: make([]string, 0, len(vocabulary)),
	}
	for _, name := range vocabulary {
		if strings.TrimSpace(name) == "" {
			continue
		}
		e.names = append(e.names, name)
		e.lowered = append(e.lowered, strings.ToLower(name))
	}
	return e
}

func (e *EntityExtractor) Extract(text string, kind EntityType) (string, bool) {
	if kind != EntityRestaurantName {
		return "", false
	}

	lowered := strings.ToLower(text)
	for i, name := range e.lowered {
		if strings.Contains(lowered, name) {
			return e.names[i], true
		}
	}
	return "", false
}
