// Package assist defines the user-facing assistant actions and the
// dispatcher that runs them: validate parameters, bind an audit context,
// submit the prompt, stream output, and finalize.
package assist

import (
	"fmt"
	"strings"

	"github.com/quillhq/quill/internal/domain"
)

// Agent identifiers.
const (
	AgentWriting   = "writing"
	AgentResearch  = "research"
	AgentCaptioner = "captioner"
)

// Params carries the union of inputs across all actions. Each action
// validates the subset it needs.
type Params struct {
	Content     string `json:"content,omitempty"`
	Selection   string `json:"selection,omitempty"`
	FullContent string `json:"full_content,omitempty"`
	Context     string `json:"context,omitempty"`

	StyleGuide    string `json:"style_guide,omitempty"`
	MaxWords      int    `json:"max_words,omitempty"`
	TargetLength  string `json:"target_length,omitempty"`
	AreasToExpand string `json:"areas_to_expand,omitempty"`

	Topic         string `json:"topic,omitempty"`
	NumberOfIdeas int    `json:"number_of_ideas,omitempty"`
	Depth         string `json:"depth,omitempty"`

	ImageData   string `json:"image_data,omitempty"` // base64
	ImageMime   string `json:"image_mime,omitempty"`
	DetailLevel string `json:"detail_level,omitempty"`

	Owner *domain.OwnerRef `json:"owner,omitempty"`
}

// Action describes one assistant capability: which agent runs it, how its
// parameters are validated, and how the user prompt is built.
type Action struct {
	Name         string
	AgentID      string
	Instructions string
	UsesTools    bool

	// ResponseKey names the field carrying the result on the synchronous
	// JSON surface (improved_content, summary, ...).
	ResponseKey string

	Validate func(*Params) error
	Prompt   func(*Params) (content string, parts []domain.ContentPart)
}

const (
	writingInstructions   = "You are an expert writing assistant helping authors create and improve their content for books and reports."
	researchInstructions  = "You are a research assistant. Use the browsing tools to gather facts from the web, then synthesize what you found with sources."
	captionerInstructions = "You are an expert document analyzer capable of extracting insights from images and other file types."
)

func requireContent(p *Params) error {
	if strings.TrimSpace(p.Content) == "" {
		return &InvalidParametersError{Param: "content", Reason: "required"}
	}
	return nil
}

// contentBlock renders the shared content/selection/context trailer of a
// writing prompt.
func contentBlock(p *Params) string {
	var b strings.Builder
	if p.Selection != "" {
		fmt.Fprintf(&b, "\n\nSelected passage:\n%s", p.Selection)
		if p.FullContent != "" {
			fmt.Fprintf(&b, "\n\nFull document for reference:\n%s", p.FullContent)
		}
	} else {
		fmt.Fprintf(&b, "\n\nContent:\n%s", p.Content)
	}
	if p.Context != "" {
		fmt.Fprintf(&b, "\n\nAdditional context:\n%s", p.Context)
	}
	b.WriteString("\n\nReturn only the resulting text, without commentary.")
	return b.String()
}

func writingAction(name, responseKey, task string) *Action {
	return &Action{
		Name:         name,
		AgentID:      AgentWriting,
		Instructions: writingInstructions,
		ResponseKey:  responseKey,
		Validate:     requireContent,
		Prompt: func(p *Params) (string, []domain.ContentPart) {
			return fmt.Sprintf("Your task: %s.%s", task, contentBlock(p)), nil
		},
	}
}

// Actions returns the full action table keyed by action_type.
func Actions() map[string]*Action {
	actions := map[string]*Action{
		"improve": writingAction("improve", "improved_content",
			"improve the writing quality, clarity, and engagement"),
		"grammar": writingAction("grammar", "corrected_content",
			"check and correct grammar, punctuation, and spelling"),

		"style": {
			Name:         "style",
			AgentID:      AgentWriting,
			Instructions: writingInstructions,
			ResponseKey:  "styled_content",
			Validate:     requireContent,
			Prompt: func(p *Params) (string, []domain.ContentPart) {
				task := "Your task: adjust the writing style and tone."
				if p.StyleGuide != "" {
					task += fmt.Sprintf(" Follow this style guide:\n%s", p.StyleGuide)
				}
				return task + contentBlock(p), nil
			},
		},

		"summarize": {
			Name:         "summarize",
			AgentID:      AgentWriting,
			Instructions: writingInstructions,
			ResponseKey:  "summary",
			Validate:     requireContent,
			Prompt: func(p *Params) (string, []domain.ContentPart) {
				maxWords := p.MaxWords
				if maxWords <= 0 {
					maxWords = 150
				}
				return fmt.Sprintf("Your task: create a concise summary of at most %d words.%s",
					maxWords, contentBlock(p)), nil
			},
		},

		"expand": {
			Name:         "expand",
			AgentID:      AgentWriting,
			Instructions: writingInstructions,
			ResponseKey:  "expanded_content",
			Validate:     requireContent,
			Prompt: func(p *Params) (string, []domain.ContentPart) {
				task := "Your task: expand and elaborate on the content."
				if p.TargetLength != "" {
					task += fmt.Sprintf(" Target length: %s.", p.TargetLength)
				}
				if p.AreasToExpand != "" {
					task += fmt.Sprintf(" Focus on: %s.", p.AreasToExpand)
				}
				return task + contentBlock(p), nil
			},
		},

		"brainstorm": {
			Name:         "brainstorm",
			AgentID:      AgentWriting,
			Instructions: writingInstructions,
			ResponseKey:  "ideas",
			Validate: func(p *Params) error {
				if strings.TrimSpace(p.Topic) == "" {
					return &InvalidParametersError{Param: "topic", Reason: "required"}
				}
				return nil
			},
			Prompt: func(p *Params) (string, []domain.ContentPart) {
				n := p.NumberOfIdeas
				if n <= 0 {
					n = 5
				}
				var b strings.Builder
				fmt.Fprintf(&b, "Your task: generate %d creative ideas and suggestions about: %s", n, p.Topic)
				if p.Context != "" {
					fmt.Fprintf(&b, "\n\nAdditional context:\n%s", p.Context)
				}
				if p.FullContent != "" {
					fmt.Fprintf(&b, "\n\nExisting content for reference:\n%s", p.FullContent)
				}
				return b.String(), nil
			},
		},

		"research": {
			Name:         "research",
			AgentID:      AgentResearch,
			Instructions: researchInstructions,
			UsesTools:    true,
			ResponseKey:  "findings",
			Validate: func(p *Params) error {
				if strings.TrimSpace(p.Topic) == "" {
					return &InvalidParametersError{Param: "topic", Reason: "required"}
				}
				return nil
			},
			Prompt: func(p *Params) (string, []domain.ContentPart) {
				depth := p.Depth
				if depth == "" {
					depth = "standard"
				}
				var b strings.Builder
				fmt.Fprintf(&b, "Research this topic (%s depth): %s", depth, p.Topic)
				if p.Context != "" {
					fmt.Fprintf(&b, "\n\nContext:\n%s", p.Context)
				}
				if p.FullContent != "" {
					fmt.Fprintf(&b, "\n\nThe document being written:\n%s", p.FullContent)
				}
				return b.String(), nil
			},
		},

		"caption": {
			Name:         "caption",
			AgentID:      AgentCaptioner,
			Instructions: captionerInstructions,
			ResponseKey:  "caption",
			Validate: func(p *Params) error {
				if p.ImageData == "" {
					return &InvalidParametersError{Param: "image_data", Reason: "required"}
				}
				if p.ImageMime == "" {
					return &InvalidParametersError{Param: "image_mime", Reason: "required"}
				}
				return nil
			},
			Prompt: func(p *Params) (string, []domain.ContentPart) {
				detail := p.DetailLevel
				if detail == "" {
					detail = "medium"
				}
				text := fmt.Sprintf("Write a caption for this image. Detail level: %s.", detail)
				parts := []domain.ContentPart{
					{Type: "text", Text: text},
					{Type: "image", Data: p.ImageData, MimeType: p.ImageMime},
				}
				return text, parts
			},
		},
	}
	return actions
}
