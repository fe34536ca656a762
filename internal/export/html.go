// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/jeranaias/veda/internal/history"
	"github.com/jeranaias/veda/internal/model"
)

var (
	codeBlockRegex  = regexp.MustCompile("```([a-zA-Z0-9_+-]*)\n([\\s\\S]*?)```")
	inlineCodeRegex = regexp.MustCompile("`([^`\n]+)`")
	boldRegex       = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports conversations to a self-contained HTML page.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

// Export converts a conversation to HTML.
func (e *HTMLExporter) Export(entry history.Entry) ([]byte, error) {
	if err := validate(entry); err != nil {
		return nil, err
	}

	theme := e.options.Theme
	if theme != "dark" {
		theme = "light"
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n")
	sb.WriteString("<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "    <title>%s</title>\n", html.EscapeString(entry.Preview))
	sb.WriteString("    <meta name=\"generator\" content=\"veda\">\n")
	fmt.Fprintf(&sb, "    <meta name=\"date\" content=\"%s\">\n", entry.Date.Format(time.RFC3339))
	sb.WriteString(css)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n", theme)
	sb.WriteString("    <div class=\"container\">\n")

	if e.options.IncludeMetadata {
		sb.WriteString(e.renderHeader(entry))
	}

	sb.WriteString("        <main class=\"conversation\">\n")
	for _, msg := range entry.Messages {
		sb.WriteString(e.renderMessage(msg))
	}
	sb.WriteString("        </main>\n")

	sb.WriteString("        <footer class=\"footer\">\n")
	fmt.Fprintf(&sb, "            <p>Exported from <strong>Veda</strong> on %s</p>\n",
		e.options.now().Format("January 2, 2006 at 3:04 PM"))
	sb.WriteString("        </footer>\n")
	sb.WriteString("    </div>\n")
	sb.WriteString("</body>\n")
	sb.WriteString("</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

// =============================================================================
// RENDERING FUNCTIONS
// =============================================================================

func (e *HTMLExporter) renderHeader(entry history.Entry) string {
	var sb strings.Builder
	sb.WriteString("        <header class=\"header\">\n")
	fmt.Fprintf(&sb, "            <h1>%s</h1>\n", html.EscapeString(entry.Preview))
	sb.WriteString("            <div class=\"metadata\">\n")
	fmt.Fprintf(&sb, "                <span class=\"meta-item\"><strong>Saved:</strong> %s</span>\n", formatTimestamp(entry.Date))
	fmt.Fprintf(&sb, "                <span class=\"meta-item\"><strong>Messages:</strong> %d</span>\n", len(entry.Messages))
	if entry.SessionID != "" {
		fmt.Fprintf(&sb, "                <span class=\"meta-item\"><strong>Session:</strong> %s</span>\n", html.EscapeString(entry.SessionID))
	}
	sb.WriteString("            </div>\n")
	sb.WriteString("        </header>\n")
	return sb.String()
}

func (e *HTMLExporter) renderMessage(msg model.Message) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "            <div class=\"message %s-message\">\n", html.EscapeString(msg.Role.String()))
	sb.WriteString("                <div class=\"message-header\">\n")
	fmt.Fprintf(&sb, "                    <span class=\"role-label\">%s</span>\n", html.EscapeString(msg.Role.DisplayName()))
	if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
		fmt.Fprintf(&sb, "                    <span class=\"timestamp\">%s</span>\n", formatShortTimestamp(msg.Timestamp))
	}
	sb.WriteString("                </div>\n")

	sb.WriteString("                <div class=\"message-content\">\n")
	sb.WriteString(formatContent(msg.Content))
	sb.WriteString("\n                </div>\n")

	if msg.Role == model.RoleAssistant {
		if len(msg.Recommendations) > 0 {
			sb.WriteString("                <ul class=\"recommendations\">\n")
			for _, rec := range msg.Recommendations {
				fmt.Fprintf(&sb, "                    <li>%s</li>\n", html.EscapeString(rec))
			}
			sb.WriteString("                </ul>\n")
		}
		if label := feedbackLabel(msg.Feedback); label != "" {
			fmt.Fprintf(&sb, "                <div class=\"feedback %s\">Rated %s</div>\n", msg.Feedback, label)
		}
	}

	sb.WriteString("            </div>\n")
	return sb.String()
}

// =============================================================================
// CONTENT FORMATTING
// =============================================================================

// formatContent escapes content and renders code fences, inline code, bold
// text and paragraphs.
func formatContent(content string) string {
	content = html.EscapeString(strings.TrimSpace(content))

	var blocks []string
	content = codeBlockRegex.ReplaceAllStringFunc(content, func(match string) string {
		parts := codeBlockRegex.FindStringSubmatch(match)
		if len(parts) != 3 {
			return match
		}
		lang := parts[1]
		label := ""
		if lang != "" {
			label = fmt.Sprintf("<div class=\"code-lang\">%s</div>", lang)
		}
		blocks = append(blocks, fmt.Sprintf("<div class=\"code-block\">%s<pre><code class=\"language-%s\">%s</code></pre></div>",
			label, lang, strings.TrimRight(parts[2], "\n")))
		return fmt.Sprintf("\x00%d\x00", len(blocks)-1)
	})

	content = inlineCodeRegex.ReplaceAllString(content, "<code class=\"inline-code\">$1</code>")
	content = boldRegex.ReplaceAllString(content, "<strong>$1</strong>")

	var out []string
	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if strings.HasPrefix(para, "\x00") && strings.HasSuffix(para, "\x00") {
			var i int
			if _, err := fmt.Sscanf(strings.Trim(para, "\x00"), "%d", &i); err == nil && i < len(blocks) {
				out = append(out, blocks[i])
				continue
			}
		}
		out = append(out, "<p>"+strings.ReplaceAll(para, "\n", "<br>\n")+"</p>")
	}

	result := strings.Join(out, "\n")
	for i, block := range blocks {
		result = strings.ReplaceAll(result, fmt.Sprintf("\x00%d\x00", i), block)
	}
	return result
}

// =============================================================================
// EMBEDDED CSS
// =============================================================================

const css = `    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        :root {
            --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;
            --font-mono: "SF Mono", "Monaco", "Inconsolata", "Fira Code", monospace;
        }

        .light-theme {
            --bg-primary: #f8fafc;
            --bg-secondary: #ffffff;
            --bg-tertiary: #eef2ff;
            --text-primary: #1e293b;
            --text-muted: #64748b;
            --border-color: #e2e8f0;
            --accent: #4f46e5;
            --accent-soft: #e0e7ff;
            --good: #059669;
            --bad: #e11d48;
        }

        .dark-theme {
            --bg-primary: #0f172a;
            --bg-secondary: #1e293b;
            --bg-tertiary: #312e81;
            --text-primary: #e2e8f0;
            --text-muted: #94a3b8;
            --border-color: #334155;
            --accent: #818cf8;
            --accent-soft: #3730a3;
            --good: #34d399;
            --bad: #fb7185;
        }

        body {
            font-family: var(--font-sans);
            line-height: 1.6;
            color: var(--text-primary);
            background: var(--bg-primary);
            padding: 20px;
        }

        .container {
            max-width: 760px;
            margin: 0 auto;
            background: var(--bg-secondary);
            border-radius: 16px;
            border: 1px solid var(--border-color);
            overflow: hidden;
        }

        .header { padding: 24px 28px; background: var(--bg-tertiary); }
        .header h1 { font-size: 22px; margin-bottom: 8px; }
        .metadata { display: flex; flex-wrap: wrap; gap: 16px; font-size: 13px; color: var(--text-muted); }

        .conversation { padding: 20px 28px; }
        .message { margin-bottom: 18px; padding: 14px 18px; border-radius: 12px; max-width: 85%; }
        .user-message { margin-left: auto; background: var(--accent); color: #fff; }
        .assistant-message { background: var(--bg-primary); border: 1px solid var(--border-color); }
        .message-header { display: flex; justify-content: space-between; font-size: 12px; margin-bottom: 6px; opacity: 0.8; }
        .role-label { font-weight: 600; }
        .message-content p { margin-bottom: 8px; }
        .message-content p:last-child { margin-bottom: 0; }

        .code-block { margin: 8px 0; border-radius: 8px; overflow: hidden; border: 1px solid var(--border-color); }
        .code-lang { font-size: 11px; padding: 4px 10px; background: var(--bg-tertiary); color: var(--text-muted); }
        pre { padding: 10px; overflow-x: auto; font-family: var(--font-mono); font-size: 13px; }
        .inline-code { font-family: var(--font-mono); font-size: 0.9em; padding: 1px 4px; border-radius: 4px; background: var(--accent-soft); }

        .recommendations { list-style: none; display: flex; flex-wrap: wrap; gap: 6px; margin-top: 10px; }
        .recommendations li { font-size: 12px; padding: 3px 10px; border-radius: 999px; border: 1px solid var(--accent); color: var(--accent); }
        .feedback { font-size: 12px; margin-top: 8px; }
        .feedback.like { color: var(--good); }
        .feedback.dislike { color: var(--bad); }

        .footer { padding: 16px 28px; font-size: 12px; color: var(--text-muted); border-top: 1px solid var(--border-color); }
    </style>
`
