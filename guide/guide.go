// Package guide extracts checklist items from a markdown guide
// document. A stage whose checklist snapshot is empty can synchronize
// its items from the section whose heading matches the stage label.
package guide

import (
	"os"
	"regexp"
	"strings"

	"github.com/hanyki111/workflow-tool/types"
)

var (
	headerPattern   = regexp.MustCompile(`^(#+)\s+(.*)`)
	checkboxPattern = regexp.MustCompile(`^\s*-\s+\[([ xX])\]\s+(.*)`)
)

// Parser scans one markdown document.
type Parser struct {
	lines []string
}

// New creates a Parser over document content.
func New(content string) *Parser {
	return &Parser{lines: strings.Split(content, "\n")}
}

// FromFile creates a Parser from a file on disk.
func FromFile(path string) (*Parser, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(string(data)), nil
}

// ExtractChecklist finds the heading containing label and collects
// every checkbox line until the next heading of equal or higher level.
// Checked state comes from the checkbox marker; tag classification
// matches inline checklist definitions.
func (p *Parser) ExtractChecklist(label string) []types.CheckItem {
	var checklist []types.CheckItem
	inSection := false
	sectionLevel := 0

	for _, line := range p.lines {
		if m := headerPattern.FindStringSubmatch(line); m != nil {
			level := len(m[1])
			text := m[2]

			if inSection {
				if level <= sectionLevel {
					break
				}
			} else if strings.Contains(text, label) {
				inSection = true
				sectionLevel = level
			}
			continue
		}

		if !inSection {
			continue
		}
		if m := checkboxPattern.FindStringSubmatch(line); m != nil {
			checked := strings.EqualFold(m[1], "x")
			checklist = append(checklist, types.NewCheckItem(m[2], checked))
		}
	}
	return checklist
}
