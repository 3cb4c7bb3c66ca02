package panels

import (
	"context"
	"strings"
	"sync"

	"missioncontrol/internal/errors"
	"missioncontrol/internal/types"
)

// Clipboard receives copied text
type Clipboard interface {
	Write(text string) error
}

// MemoryClipboard keeps the last copied text. The CLI and tests use it.
type MemoryClipboard struct {
	mu   sync.Mutex
	text string
}

func (c *MemoryClipboard) Write(text string) error {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
	return nil
}

// Text returns the last copied text
func (c *MemoryClipboard) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// PostWriter regenerates the LinkedIn post in another tone
type PostWriter interface {
	LinkedInPost(ctx context.Context, req types.LinkedInRequest) (*types.GhostwriterSection, error)
}

// Block names a copyable part of the ghostwriter output
type Block string

const (
	BlockPrimaryPost Block = "primary_post"
	BlockLongForm    Block = "long_form"
	BlockHeadlines   Block = "headlines"
	BlockHashtags    Block = "hashtags"
	BlockThread      Block = "thread"
)

// GhostwriterView is the ghostwriter panel
type GhostwriterView struct {
	Empty           bool     `json:"empty"`
	PrimaryPost     string   `json:"primary_post,omitempty"`
	LongFormVersion string   `json:"long_form_version,omitempty"`
	HeadlineOptions []string `json:"headline_options"`
	Hashtags        []string `json:"hashtags"`
	BestTimeToPost  string   `json:"best_time_to_post,omitempty"`
	TwitterThread   []string `json:"twitter_thread"`
}

// NewGhostwriterView renders the ghostwriter panel
func NewGhostwriterView(section *types.GhostwriterSection) GhostwriterView {
	if section == nil {
		return GhostwriterView{Empty: true, HeadlineOptions: []string{}, Hashtags: []string{}, TwitterThread: []string{}}
	}
	view := GhostwriterView{
		PrimaryPost:     Clean(section.PrimaryPost),
		LongFormVersion: Clean(section.LongFormVersion),
		HeadlineOptions: defaultSanitizer.CleanAll(section.HeadlineOptions),
		Hashtags:        make([]string, 0, len(section.Hashtags)),
		BestTimeToPost:  PlainText(section.BestTimeToPost),
		TwitterThread:   defaultSanitizer.CleanAll(section.TwitterThread),
	}
	for _, tag := range dedupe(section.Hashtags) {
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		view.Hashtags = append(view.Hashtags, tag)
	}
	view.Empty = view.PrimaryPost == "" && view.LongFormVersion == "" && len(view.TwitterThread) == 0
	return view
}

// Text returns the text of one block
func (v GhostwriterView) Text(block Block) (string, error) {
	var text string
	switch block {
	case BlockPrimaryPost:
		text = v.PrimaryPost
	case BlockLongForm:
		text = v.LongFormVersion
	case BlockHeadlines:
		text = strings.Join(v.HeadlineOptions, "\n")
	case BlockHashtags:
		text = strings.Join(v.Hashtags, " ")
	case BlockThread:
		text = strings.Join(v.TwitterThread, "\n\n")
	default:
		return "", errors.NewValidationError(errors.ErrCodeInvalidRequest, "unknown block", nil).
			WithContext("block", string(block))
	}
	if text == "" {
		return "", errors.NewValidationError(errors.ErrCodeNotFound, "nothing to copy", nil).
			WithContext("block", string(block))
	}
	return text, nil
}

// Copy writes one block to the clipboard
func (v GhostwriterView) Copy(block Block, clip Clipboard) error {
	text, err := v.Text(block)
	if err != nil {
		return err
	}
	if err := clip.Write(text); err != nil {
		return errors.NewIOError(errors.ErrCodeFileNotReadable, "failed to write to clipboard", err)
	}
	return nil
}

// DefaultTone is used when Regenerate is given no tone
const DefaultTone = "humble_brag"

// Regenerate asks the ghostwriter for a new post in the given tone
func Regenerate(ctx context.Context, writer PostWriter, resumeID, tone string) (GhostwriterView, error) {
	if strings.TrimSpace(resumeID) == "" {
		return GhostwriterView{}, errors.NewValidationError(errors.ErrCodeMissingResume, "no resume is bound", nil)
	}
	if tone == "" {
		tone = DefaultTone
	}
	section, err := writer.LinkedInPost(ctx, types.LinkedInRequest{ResumeID: resumeID, Tone: tone})
	if err != nil {
		return GhostwriterView{}, err
	}
	return NewGhostwriterView(section), nil
}
