package convert

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

var h1Re = regexp.MustCompile(`(?m)^#\s+(.+)$`)

// extractMarkdown reads a Markdown file, stripping YAML frontmatter and
// taking the title from the frontmatter or the first h1 heading.
func extractMarkdown(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("file is not valid UTF-8")
	}

	content := string(data)
	frontmatter, body := splitFrontmatter(content)

	text := strings.TrimSpace(body)
	if text == "" {
		return nil, fmt.Errorf("file is empty")
	}

	title := frontmatterTitle(frontmatter)
	if title == "" {
		if m := h1Re.FindStringSubmatch(text); m != nil {
			title = strings.TrimSpace(m[1])
		}
	}
	if title == "" {
		title = firstLine(text)
	}

	return &Document{
		Text:      text,
		Title:     title,
		PageCount: 1,
		Format:    "markdown",
	}, nil
}

// splitFrontmatter separates a leading YAML frontmatter block from the
// body. Malformed frontmatter is treated as body text.
func splitFrontmatter(content string) (map[string]any, string) {
	if !strings.HasPrefix(content, "---\n") {
		return nil, content
	}
	endIdx := strings.Index(content[4:], "\n---")
	if endIdx <= 0 {
		return nil, content
	}

	var fm map[string]any
	if err := yaml.Unmarshal([]byte(content[4:4+endIdx]), &fm); err != nil {
		return nil, content
	}
	body := strings.TrimPrefix(content[4+endIdx+4:], "\n")
	return fm, body
}

func frontmatterTitle(fm map[string]any) string {
	if title, ok := fm["title"].(string); ok && title != "" {
		return title
	}
	if name, ok := fm["case_name"].(string); ok && name != "" {
		return name
	}
	return ""
}
