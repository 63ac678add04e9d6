package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/yuin/goldmark"
)

// Text renders the summary printed at the end of a run.
func (s Summary) Text() string {
	var b strings.Builder

	if n := len(s.AutoDated); n > 0 {
		fmt.Fprintf(&b, "The following image%s had no EXIF data and data was created automatically:\n", plural(n, "s"))
		for _, e := range s.AutoDated {
			fmt.Fprintf(&b, "%s-> Date Taken: %s\n", e.Name, e.Date)
		}
	}
	if n := len(s.Unorganized); n > 0 {
		fmt.Fprintf(&b, "The following image%s did not belong to any album and %s not organized:\n", plural(n, "s"), wasWere(n))
		for _, e := range s.Unorganized {
			fmt.Fprintf(&b, "%s\n", e.Name)
		}
	}
	if n := len(s.MetadataSkipped); n > 0 {
		fmt.Fprintf(&b, "The following image%s could not carry EXIF data and kept %s original metadata:\n", plural(n, "s"), itsTheir(n))
		for _, e := range s.MetadataSkipped {
			fmt.Fprintf(&b, "%s (%s)\n", e.Name, e.Detail)
		}
	}
	b.WriteString(PNGAdvisory)
	b.WriteString("\n")
	return b.String()
}

// Markdown renders the summary as a markdown document.
func (s Summary) Markdown(runID string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Sync run %s\n\n", runID)
	fmt.Fprintf(&b, "%d file%s written (%s).\n", s.Written, plural(s.Written, "s"), humanize.Bytes(uint64(s.Bytes)))

	if len(s.AutoDated) > 0 {
		b.WriteString("\n## Auto-dated\n\n| File | Date taken |\n|---|---|\n")
		for _, e := range s.AutoDated {
			fmt.Fprintf(&b, "| %s | %s |\n", escapeCell(e.Name), e.Date)
		}
	}
	if len(s.Unorganized) > 0 {
		b.WriteString("\n## Not in any album\n\n")
		for _, e := range s.Unorganized {
			fmt.Fprintf(&b, "- %s\n", escapeCell(e.Name))
		}
	}
	if len(s.MetadataSkipped) > 0 {
		b.WriteString("\n## Metadata skipped\n\n")
		for _, e := range s.MetadataSkipped {
			fmt.Fprintf(&b, "- %s (%s)\n", escapeCell(e.Name), e.Detail)
		}
	}
	fmt.Fprintf(&b, "\n> %s\n", PNGAdvisory)
	return b.String()
}

// WriteFiles writes <runID>.md and its HTML rendering into dir.
func WriteFiles(dir, runID string, s Summary) (mdPath, htmlPath string, err error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create report directory: %w", err)
	}

	md := s.Markdown(runID)
	var html bytes.Buffer
	if err := goldmark.Convert([]byte(md), &html); err != nil {
		return "", "", fmt.Errorf("failed to render report: %w", err)
	}

	mdPath = filepath.Join(dir, runID+".md")
	htmlPath = filepath.Join(dir, runID+".html")
	if err := os.WriteFile(mdPath, []byte(md), 0644); err != nil {
		return "", "", fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.WriteFile(htmlPath, html.Bytes(), 0644); err != nil {
		return "", "", fmt.Errorf("failed to write report: %w", err)
	}
	return mdPath, htmlPath, nil
}

func plural(n int, suffix string) string {
	if n == 1 {
		return ""
	}
	return suffix
}

func wasWere(n int) string {
	if n == 1 {
		return "was"
	}
	return "were"
}

func itsTheir(n int) string {
	if n == 1 {
		return "its"
	}
	return "their"
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
