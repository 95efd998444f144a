package research

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quillhq/quill/internal/agent"
)

const navigateSchema = `{
	"type": "object",
	"properties": {
		"url": {"type": "string", "description": "Absolute http(s) URL to load"}
	},
	"required": ["url"]
}`

const extractTextSchema = `{
	"type": "object",
	"properties": {
		"max_chars": {"type": "integer", "description": "Truncate the extracted text to this many characters"}
	}
}`

const extractLinksSchema = `{
	"type": "object",
	"properties": {
		"limit": {"type": "integer", "description": "Maximum number of links to return"}
	}
}`

const emptySchema = `{"type": "object", "properties": {}}`

// SessionTools builds the research tool set bound to one page session.
// defaultMaxChars caps text extraction when the model does not ask for a
// limit; zero means unlimited.
func SessionTools(s Session, defaultMaxChars int) []agent.Tool {
	return []agent.Tool{
		agent.NewTool("navigate",
			"Load a web page and make it the current page.",
			navigateSchema,
			func(ctx context.Context, input json.RawMessage) (string, error) {
				var args struct {
					URL string `json:"url"`
				}
				if err := json.Unmarshal(input, &args); err != nil {
					return "", fmt.Errorf("invalid arguments: %w", err)
				}
				if args.URL == "" {
					return "", fmt.Errorf("url is required")
				}
				page, err := s.Navigate(ctx, args.URL)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Loaded %s (HTTP %d): %s", page.URL, page.Status, page.Title), nil
			}),

		agent.NewTool("extract_text",
			"Extract the visible text of the current page.",
			extractTextSchema,
			func(_ context.Context, input json.RawMessage) (string, error) {
				limit, err := maxChars(input, defaultMaxChars)
				if err != nil {
					return "", err
				}
				page, err := s.CurrentPage()
				if err != nil {
					return "", err
				}
				return page.Text(limit), nil
			}),

		agent.NewTool("extract_main_content",
			"Extract the primary content of the current page, skipping navigation and other page chrome.",
			extractTextSchema,
			func(_ context.Context, input json.RawMessage) (string, error) {
				limit, err := maxChars(input, defaultMaxChars)
				if err != nil {
					return "", err
				}
				page, err := s.CurrentPage()
				if err != nil {
					return "", err
				}
				return page.MainContent(limit), nil
			}),

		agent.NewTool("extract_links",
			"List hyperlinks on the current page with their anchor text.",
			extractLinksSchema,
			func(_ context.Context, input json.RawMessage) (string, error) {
				var args struct {
					Limit int `json:"limit"`
				}
				if len(input) > 0 {
					if err := json.Unmarshal(input, &args); err != nil {
						return "", fmt.Errorf("invalid arguments: %w", err)
					}
				}
				page, err := s.CurrentPage()
				if err != nil {
					return "", err
				}
				links := page.Links(args.Limit)
				out, err := json.Marshal(links)
				if err != nil {
					return "", err
				}
				return string(out), nil
			}),

		agent.NewTool("page_info",
			"Describe the current page: URL, status, title, size, link count.",
			emptySchema,
			func(_ context.Context, _ json.RawMessage) (string, error) {
				page, err := s.CurrentPage()
				if err != nil {
					return "", err
				}
				out, err := json.Marshal(page.Info())
				if err != nil {
					return "", err
				}
				return string(out), nil
			}),
	}
}

func maxChars(input json.RawMessage, fallback int) (int, error) {
	var args struct {
		MaxChars int `json:"max_chars"`
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return 0, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	if args.MaxChars > 0 {
		return args.MaxChars, nil
	}
	return fallback, nil
}
