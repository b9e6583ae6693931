package parser

import (
	"encoding/xml"
	"strconv"
	"strings"
)

type assessmentItem struct {
	XMLName      xml.Name             `xml:"assessmentItem"`
	Identifier   string               `xml:"identifier,attr"`
	Title        string               `xml:"title,attr"`
	Body         itemBody             `xml:"itemBody"`
	ResponseDecl responseDeclaration  `xml:"responseDeclaration"`
	OutcomeDecls []outcomeDeclaration `xml:"outcomeDeclaration"`
	Feedback     []modalFeedback      `xml:"modalFeedback"`
}
type itemBody struct {
	RawXML string `xml:",innerxml"`
}
type responseDeclaration struct {
	Identifier  string `xml:"identifier,attr"`
	Cardinality string `xml:"cardinality,attr"` // single|multiple
	BaseType    string `xml:"baseType,attr"`
	Correct     struct {
		Values []string `xml:"value"`
	} `xml:"correctResponse"`
}
type outcomeDeclaration struct {
	Identifier   string `xml:"identifier,attr"`
	BaseType     string `xml:"baseType,attr"`
	DefaultValue struct {
		Value string `xml:"value"`
	} `xml:"defaultValue"`
}
type modalFeedback struct {
	Inner string `xml:",innerxml"`
}

type InteractionType string

const (
	InteractionChoiceSingle InteractionType = "choice_single"
	InteractionChoiceMulti  InteractionType = "choice_multi"
	InteractionTextEntry    InteractionType = "text_entry"
	InteractionNumeric      InteractionType = "numeric"
	InteractionExtendedText InteractionType = "extended_text"
)

type ParsedItem struct {
	ID         string
	Href       string
	Title      string
	PromptHTML string
	Kind       InteractionType
	Choices    []Choice
	AnswerKey  []string
	Points     float64
	Feedback   string
}

type Choice struct {
	ID    string
	Label string // HTML
}

// ParseItem reads a single assessmentItem document. The interaction kind is
// inferred from the body; only the first interaction is considered.
func ParseItem(b []byte) (ParsedItem, error) {
	var it assessmentItem
	if err := xml.Unmarshal(b, &it); err != nil {
		return ParsedItem{}, err
	}

	pi := ParsedItem{
		ID:         it.Identifier,
		Title:      it.Title,
		PromptHTML: extractPrompt(it.Body.RawXML),
		Points:     maxScore(it.OutcomeDecls),
	}
	if len(it.Feedback) > 0 {
		pi.Feedback = strings.TrimSpace(it.Feedback[0].Inner)
	}

	body := strings.ToLower(it.Body.RawXML)
	switch {
	case strings.Contains(body, "<choiceinteraction"):
		if it.ResponseDecl.Cardinality == "multiple" {
			pi.Kind = InteractionChoiceMulti
		} else {
			pi.Kind = InteractionChoiceSingle
		}
		pi.Choices = extractChoices(it.Body.RawXML)
		pi.AnswerKey = trimValues(it.ResponseDecl.Correct.Values)
	case strings.Contains(body, "<textentryinteraction"):
		pi.Kind = InteractionTextEntry
		if bt := it.ResponseDecl.BaseType; bt == "float" || bt == "integer" {
			pi.Kind = InteractionNumeric
		}
		pi.AnswerKey = trimValues(it.ResponseDecl.Correct.Values)
	default:
		pi.Kind = InteractionExtendedText
	}
	return pi, nil
}

func maxScore(decls []outcomeDeclaration) float64 {
	for _, d := range decls {
		if strings.EqualFold(d.Identifier, "MAXSCORE") {
			if v, err := strconv.ParseFloat(strings.TrimSpace(d.DefaultValue.Value), 64); err == nil && v > 0 {
				return v
			}
		}
	}
	return 1
}

func trimValues(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func extractPrompt(inner string) string {
	l := strings.ToLower(inner)
	idx := -1
	for _, tag := range []string{"<choiceinteraction", "<textentryinteraction", "<extendedtextinteraction"} {
		if i := strings.Index(l, tag); i != -1 && (idx == -1 || i < idx) {
			idx = i
		}
	}
	if idx == -1 {
		return strings.TrimSpace(inner)
	}
	prompt := strings.TrimSpace(inner[:idx])
	// choiceInteraction may carry its own <prompt>
	if prompt == "" {
		if s := strings.Index(l, "<prompt>"); s != -1 {
			if e := strings.Index(l[s:], "</prompt>"); e != -1 {
				prompt = strings.TrimSpace(inner[s+len("<prompt>") : s+e])
			}
		}
	}
	return prompt
}

// extractChoices collects <simpleChoice identifier="A">Label</simpleChoice>.
func extractChoices(inner string) []Choice {
	out := []Choice{}
	dec := xml.NewDecoder(strings.NewReader(inner))
	dec.Strict = false
	for {
		t, err := dec.Token()
		if err != nil {
			break
		}
		se, ok := t.(xml.StartElement)
		if !ok || !strings.EqualFold(se.Name.Local, "simpleChoice") {
			continue
		}
		var id string
		for _, a := range se.Attr {
			if strings.EqualFold(a.Name.Local, "identifier") {
				id = a.Value
				break
			}
		}
		var text struct {
			Inner string `xml:",innerxml"`
		}
		if err := dec.DecodeElement(&text, &se); err == nil {
			out = append(out, Choice{ID: id, Label: strings.TrimSpace(text.Inner)})
		}
	}
	return out
}
