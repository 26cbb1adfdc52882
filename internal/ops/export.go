package ops

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/loom/internal/config"
	"github.com/hpungsan/loom/internal/draft"
	"github.com/hpungsan/loom/internal/errors"
	"github.com/hpungsan/loom/internal/fsutil"
)

// Manuscript formats.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path   string // optional, default: <exports dir>/manuscript-<timestamp>.md|.html
	Format string // "markdown" or "html"; inferred from Path when empty
	Title  string // optional manuscript heading
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Format     string `json:"format"`
	Chapters   int    `json:"chapters"`
	Bytes      int    `json:"bytes"`
	ExportedAt int64  `json:"exported_at"`
}

var manuscriptPage = template.Must(template.New("manuscript").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
{{.Body}}</body>
</html>
`))

// Export compiles every chapter with at least one drafted part into a single
// manuscript and writes it atomically. Chapters appear in index order.
func Export(ctx context.Context, store *draft.Store, cfg *config.Config, exportsDir string, input ExportInput) (*ExportOutput, error) {
	now := time.Now()

	format, err := resolveFormat(input)
	if err != nil {
		return nil, err
	}

	exportPath := input.Path
	if exportPath == "" {
		ext := ".md"
		if format == FormatHTML {
			ext = ".html"
		}
		exportPath = filepath.Join(exportsDir, "manuscript-"+now.Format("2006-01-02T150405")+ext)
	}

	// Validate ALL paths (both user-provided and default)
	if err := ValidateExportPath(exportPath, exportsDir, cfg); err != nil {
		return nil, err
	}

	md, chapters, err := compileMarkdown(ctx, store.All(), input.Title)
	if err != nil {
		return nil, err
	}

	data := md
	if format == FormatHTML {
		data, err = renderHTML(md, input.Title)
		if err != nil {
			return nil, err
		}
	}

	if err := fsutil.WriteFileAtomic(exportPath, data, 0600); err != nil {
		if errors.Is(err, errors.ErrInvalidRequest) {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to write manuscript: %w", err))
	}

	return &ExportOutput{
		Path:       exportPath,
		Format:     format,
		Chapters:   chapters,
		Bytes:      len(data),
		ExportedAt: now.Unix(),
	}, nil
}

func resolveFormat(input ExportInput) (string, error) {
	format := strings.ToLower(strings.TrimSpace(input.Format))
	fromExt := ""
	if input.Path != "" {
		fromExt = exportExtensions[strings.ToLower(filepath.Ext(input.Path))]
	}

	switch format {
	case "":
		if fromExt != "" {
			return fromExt, nil
		}
		return FormatMarkdown, nil
	case "md":
		format = FormatMarkdown
	case FormatMarkdown, FormatHTML:
	default:
		return "", errors.NewInvalidRequest("format must be markdown or html")
	}

	if fromExt != "" && fromExt != format {
		return "", errors.NewInvalidRequest(fmt.Sprintf("path extension does not match format %s", format))
	}
	return format, nil
}

// compileMarkdown renders drafted chapters as markdown. Untouched chapters are skipped.
func compileMarkdown(ctx context.Context, records []draft.Record, title string) ([]byte, int, error) {
	var buf bytes.Buffer
	if title != "" {
		fmt.Fprintf(&buf, "# %s\n\n", title)
	}

	count := 0
	for _, rec := range records {
		select {
		case <-ctx.Done():
			return nil, 0, errors.NewCancelled("export")
		default:
		}

		if rec.Empty() {
			continue
		}
		fmt.Fprintf(&buf, "## %s\n\n", rec.Title)
		for p := 1; p <= draft.Parts; p++ {
			text, _ := rec.Part(p)
			if text = strings.TrimSpace(text); text != "" {
				buf.WriteString(text)
				buf.WriteString("\n\n")
			}
		}
		count++
	}
	return buf.Bytes(), count, nil
}

func renderHTML(md []byte, title string) ([]byte, error) {
	var body bytes.Buffer
	if err := goldmark.Convert(md, &body); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to render manuscript: %w", err))
	}
	if title == "" {
		title = "Manuscript"
	}

	var out bytes.Buffer
	err := manuscriptPage.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{title, template.HTML(body.String())})
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return out.Bytes(), nil
}
