package convert

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// extractText reads markdown or plain text files as-is, checking only that
// the content is valid UTF-8 and non-empty.
func extractText(path, format string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if !utf8.Valid(data) {
		return nil, fmt.Errorf("file is not valid UTF-8")
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("file is empty")
	}

	return &Document{
		Text:      text,
		Title:     firstLine(text),
		PageCount: 1,
		Format:    format,
	}, nil
}
