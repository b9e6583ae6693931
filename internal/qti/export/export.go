package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"path"
	"strings"

	"github.com/mind-engage/examdesk/internal/bank"
)

// MediaFetcher loads a media object referenced by a question.
type MediaFetcher func(ctx context.Context, key string) (io.ReadCloser, error)

// BuildPackage writes a QTI 2.1 content package with one item per question.
// Media keys are copied under media/ when fetch is non-nil.
func BuildPackage(ctx context.Context, title string, qs []bank.Question, fetch MediaFetcher) ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	mf := imsManifest{
		Xmlns:     "http://www.imsglobal.org/xsd/imscp_v1p1",
		Title:     title,
		Resources: []imsResource{},
	}
	seenMedia := map[string]bool{}
	for _, q := range qs {
		itemName := fmt.Sprintf("items/%s.xml", q.ID)
		res := imsResource{
			Identifier: q.ID,
			Type:       "imsqti_item_xmlv2p1",
			Href:       itemName,
			Files:      []imsFile{{Href: itemName}},
		}
		w, err := zw.Create(itemName)
		if err != nil {
			return nil, err
		}
		if _, err := io.WriteString(w, buildItemXML(q)); err != nil {
			return nil, err
		}

		for _, key := range q.MediaKeys {
			name := path.Join("media", key)
			res.Files = append(res.Files, imsFile{Href: name})
			if fetch == nil || seenMedia[key] {
				continue
			}
			seenMedia[key] = true
			if err := copyMedia(ctx, zw, name, key, fetch); err != nil {
				return nil, fmt.Errorf("media %s: %w", key, err)
			}
		}
		mf.Resources = append(mf.Resources, res)
	}

	mfw, err := zw.Create("imsmanifest.xml")
	if err != nil {
		return nil, err
	}
	b, err := xml.MarshalIndent(mf, "", "  ")
	if err != nil {
		return nil, err
	}
	mfw.Write([]byte(xml.Header))
	mfw.Write(b)

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func copyMedia(ctx context.Context, zw *zip.Writer, name, key string, fetch MediaFetcher) error {
	rc, err := fetch(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, rc)
	return err
}

type imsManifest struct {
	XMLName   xml.Name      `xml:"manifest"`
	Xmlns     string        `xml:"xmlns,attr,omitempty"`
	Title     string        `xml:"metadata>title,omitempty"`
	Resources []imsResource `xml:"resources>resource"`
}
type imsResource struct {
	Identifier string    `xml:"identifier,attr"`
	Type       string    `xml:"type,attr"`
	Href       string    `xml:"href,attr"`
	Files      []imsFile `xml:"file"`
}
type imsFile struct {
	Href string `xml:"href,attr"`
}

const itemHeader = `<?xml version="1.0" encoding="UTF-8"?>
<assessmentItem identifier="%s" title="%s" xmlns="http://www.imsglobal.org/xsd/imsqti_v2p1">
`

func buildItemXML(q bank.Question) string {
	var b strings.Builder
	fmt.Fprintf(&b, itemHeader, attr(q.ID), attr(q.Topic))

	switch q.Type {
	case bank.TypeMCQSingle, bank.TypeMCQMulti, bank.TypeTrueFalse:
		card := "single"
		if q.Type == bank.TypeMCQMulti {
			card = "multiple"
		}
		writeResponse(&b, card, "identifier", q.AnswerKey)
		writeMaxScore(&b, q.Points)
		fmt.Fprintf(&b, "  <itemBody>\n    %s\n    <choiceInteraction responseIdentifier=\"RESPONSE\" maxChoices=\"%d\">\n", q.PromptHTML, maxChoices(card))
		for _, c := range q.Choices {
			fmt.Fprintf(&b, "      <simpleChoice identifier=\"%s\">%s</simpleChoice>\n", attr(c.ID), c.LabelHTML)
		}
		b.WriteString("    </choiceInteraction>\n  </itemBody>\n")
	case bank.TypeShortWord, bank.TypeNumeric:
		baseType := "string"
		if q.Type == bank.TypeNumeric {
			baseType = "float"
		}
		writeResponse(&b, "single", baseType, q.AnswerKey)
		writeMaxScore(&b, q.Points)
		fmt.Fprintf(&b, "  <itemBody>\n    %s\n    <textEntryInteraction responseIdentifier=\"RESPONSE\"/>\n  </itemBody>\n", q.PromptHTML)
	default:
		writeMaxScore(&b, q.Points)
		fmt.Fprintf(&b, "  <itemBody>\n    %s\n    <extendedTextInteraction responseIdentifier=\"RESPONSE\"/>\n  </itemBody>\n", q.PromptHTML)
	}
	if q.Explanation != "" {
		fmt.Fprintf(&b, "  <modalFeedback outcomeIdentifier=\"FEEDBACK\" identifier=\"EXPLANATION\" showHide=\"show\">%s</modalFeedback>\n", q.Explanation)
	}
	b.WriteString("</assessmentItem>")
	return b.String()
}

func writeResponse(b *strings.Builder, card, baseType string, key []string) {
	fmt.Fprintf(b, "  <responseDeclaration identifier=\"RESPONSE\" cardinality=\"%s\" baseType=\"%s\">\n    <correctResponse>", card, baseType)
	for _, v := range key {
		// tolerance hints are grading options, not QTI values
		if strings.Contains(v, "tol=") {
			continue
		}
		fmt.Fprintf(b, "<value>%s</value>", html.EscapeString(v))
	}
	b.WriteString("</correctResponse>\n  </responseDeclaration>\n")
}

func writeMaxScore(b *strings.Builder, points float64) {
	fmt.Fprintf(b, "  <outcomeDeclaration identifier=\"MAXSCORE\" cardinality=\"single\" baseType=\"float\"><defaultValue><value>%g</value></defaultValue></outcomeDeclaration>\n", points)
}

func attr(s string) string { return html.EscapeString(s) }

func maxChoices(card string) int {
	if card == "multiple" {
		return 0
	}
	return 1
}
