package analysis

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"github.com/nexassist/a11yscan/pkg/models"
)

// DOMChecker runs deterministic structural checks on the rendered snapshot,
// catching issues the AI pass may have missed. Checks are additive: they
// append synthetic issues and never block or fail a scan.
type DOMChecker struct {
	logger *logrus.Logger
}

func NewDOMChecker(logger *logrus.Logger) *DOMChecker {
	if logger == nil {
		logger = logrus.New()
	}
	return &DOMChecker{logger: logger}
}

func (d *DOMChecker) Check(renderedHTML string) []models.Issue {
	doc, err := html.Parse(strings.NewReader(renderedHTML))
	if err != nil {
		d.logger.WithError(err).Debug("DOM check skipped: snapshot did not parse")
		return nil
	}

	var issues []models.Issue
	if missing := countMissingAlt(doc); missing > 0 {
		issues = append(issues, models.Issue{
			Criterion:   "1.1.1",
			Principle:   models.PrinciplePerceivable,
			Severity:    models.SeverityHigh,
			Description: fmt.Sprintf("Found %d images without alt text.", missing),
			Fix:         "Add descriptive alt text to all images.",
			CodeFix:     `<img src="example.jpg" alt="Description of image">`,
			Confidence:  95,
		})
	}
	return issues
}

// countMissingAlt counts img elements whose alt attribute is absent or empty.
func countMissingAlt(n *html.Node) int {
	count := 0
	if n.Type == html.ElementNode && n.Data == "img" {
		hasAlt := false
		for _, attr := range n.Attr {
			if attr.Key == "alt" && strings.TrimSpace(attr.Val) != "" {
				hasAlt = true
				break
			}
		}
		if !hasAlt {
			count++
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		count += countMissingAlt(child)
	}
	return count
}
