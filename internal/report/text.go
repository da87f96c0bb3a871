package report

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/parcel-screen/internal/geo"
)

// WriteText writes a human-readable summary followed by the ranked sites.
// Counts use English digit grouping.
func WriteText(w io.Writer, doc *Document, pr geo.Precision) error {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	if doc.RunID != "" {
		p.Fprintf(&b, "Run %s", doc.RunID)
		if doc.CacheHit {
			b.WriteString(" (cached)")
		}
		b.WriteString("\n")
	}
	p.Fprintf(&b, "Screened %d candidate sites; %d within range.\n",
		doc.Output.Screened, len(doc.Output.Results))
	if doc.Output.CentroidOnly {
		b.WriteString("Parcel boundary unavailable: distances are from the reference point.\n")
	}

	if counts := doc.summary(); len(counts) > 0 {
		b.WriteString("\nBy tier:\n")
		for _, tc := range counts {
			p.Fprintf(&b, "  %-14s %6d\n", tc.Label, tc.Count)
		}
	}

	if len(doc.Output.Results) > 0 {
		b.WriteString("\nSites:\n")
		for _, r := range doc.Output.Results {
			marker := ""
			if r.Contained {
				marker = " (on parcel)"
			}
			p.Fprintf(&b, "  %4d. %-14s %s mi  %s%s\n",
				r.Rank, r.Tier.Label, pr.Format(r.EdgeMiles), r.Candidate.ID, marker)
		}
	}

	if len(doc.Output.Diagnostics) > 0 {
		b.WriteString("\nDiagnostics:\n")
		for _, d := range doc.Output.Diagnostics {
			if d.CandidateID != "" {
				p.Fprintf(&b, "  [%s] %s: %s\n", d.Kind, d.CandidateID, d.Message)
				continue
			}
			p.Fprintf(&b, "  [%s] %s\n", d.Kind, d.Message)
		}
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return eris.Wrap(err, "report: write text")
	}
	return nil
}
