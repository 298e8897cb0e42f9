package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-yaml"
	"github.com/google/uuid"

	"github.com/dfworx/chat-backend/internal/models"
)

type frontMatter struct {
	Title        string     `yaml:"title"`
	ThreadID     string     `yaml:"thread_id"`
	ThreadType   string     `yaml:"thread_type"`
	Organization string     `yaml:"organization_id"`
	PostID       string     `yaml:"post_id,omitempty"`
	PostTitle    string     `yaml:"post_title,omitempty"`
	Archived     bool       `yaml:"archived"`
	Tags         []string   `yaml:"tags,omitempty"`
	Messages     int        `yaml:"messages"`
	From         *time.Time `yaml:"from,omitempty"`
	To           *time.Time `yaml:"to,omitempty"`
	Truncated    bool       `yaml:"truncated,omitempty"`
	ExportedAt   time.Time  `yaml:"exported_at"`
	ExportedBy   string     `yaml:"exported_by"`
}

const timeLayout = "2006-01-02 15:04 MST"

func renderMarkdown(doc *Document) ([]byte, error) {
	fm := frontMatter{
		Title:        doc.Thread.Title,
		ThreadID:     doc.Thread.ID.String(),
		ThreadType:   string(doc.Thread.Type),
		Organization: doc.Thread.OrganizationID.String(),
		Archived:     doc.Thread.IsArchived,
		Messages:     len(doc.Messages),
		From:         doc.Request.From,
		To:           doc.Request.To,
		Truncated:    doc.Truncated,
		ExportedAt:   doc.ExportedAt,
		ExportedBy:   doc.ExportedBy.String(),
	}
	if doc.Thread.PostID != nil {
		fm.PostID = doc.Thread.PostID.String()
	}
	if doc.Thread.Post != nil {
		fm.PostTitle = doc.Thread.Post.Title
	}
	for _, t := range doc.Tags {
		fm.Tags = append(fm.Tags, t.Slug)
	}
	head, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("encode front matter: %w", err)
	}

	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(head)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", doc.Thread.Title)
	if doc.Thread.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", doc.Thread.Description)
	}
	if doc.Thread.PostUnavailable {
		b.WriteString("_The linked post is no longer available._\n\n")
	}
	fmt.Fprintf(&b, "%s messages, exported %s.\n\n", humanize.Comma(int64(len(doc.Messages))), doc.ExportedAt.Format(timeLayout))

	names := make(map[uuid.UUID]string, len(doc.Messages))
	for _, m := range doc.Messages {
		names[m.ID] = m.AuthorName
	}
	for _, m := range doc.Messages {
		writeMessage(&b, m, names)
	}
	if doc.Truncated {
		b.WriteString("---\n\n_Export truncated._\n")
	}
	return b.Bytes(), nil
}

func writeMessage(b *bytes.Buffer, m Message, names map[uuid.UUID]string) {
	fmt.Fprintf(b, "### %s · %s", displayName(m.AuthorName, m.AuthorEmail), m.CreatedAt.UTC().Format(timeLayout))
	if m.IsEdited {
		b.WriteString(" (edited)")
	}
	if m.IsDeleted {
		b.WriteString(" (deleted)")
	}
	b.WriteString("\n\n")
	if m.ParentMessageID != nil {
		parent := names[*m.ParentMessageID]
		if parent == "" {
			parent = "an earlier message"
		}
		fmt.Fprintf(b, "> in reply to %s\n\n", parent)
	}
	b.WriteString(strings.TrimRight(m.Content, "\n"))
	b.WriteString("\n\n")

	if len(m.Tags) > 0 {
		slugs := make([]string, 0, len(m.Tags))
		for _, t := range m.Tags {
			slugs = append(slugs, "`#"+t.Slug+"`")
		}
		fmt.Fprintf(b, "Tags: %s\n\n", strings.Join(slugs, " "))
	}
	for _, a := range m.Attachments {
		fmt.Fprintf(b, "- 📎 %s (%s, %s)\n", a.Filename, a.MimeType, humanize.Bytes(uint64(a.Size)))
	}
	if len(m.Attachments) > 0 {
		b.WriteString("\n")
	}
	if line := reactionLine(m.Reactions); line != "" {
		b.WriteString(line)
		b.WriteString("\n\n")
	}
}

func displayName(name, email string) string {
	if name != "" {
		return name
	}
	if email != "" {
		return email
	}
	return "unknown"
}

// reactionLine summarizes reactions as "👍 2 · 🎉 1" in first-seen order.
func reactionLine(rs []models.Reaction) string {
	if len(rs) == 0 {
		return ""
	}
	counts := map[string]int{}
	var order []string
	for _, r := range rs {
		if counts[r.Emoji] == 0 {
			order = append(order, r.Emoji)
		}
		counts[r.Emoji]++
	}
	parts := make([]string, 0, len(order))
	for _, e := range order {
		parts = append(parts, fmt.Sprintf("%s %d", e, counts[e]))
	}
	return strings.Join(parts, " · ")
}
