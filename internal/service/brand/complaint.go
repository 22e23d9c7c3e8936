package brand

import (
	"context"
	"fmt"
	"strings"
)

const complaintHelpURL = "https://support.google.com/legal/answer/3110420"

// ComplaintDoc renders a plain-text evidence pack for the selected
// violations of a job. Ids that belong to another job are ignored.
func (m *Matcher) ComplaintDoc(ctx context.Context, jobID string, violationIDs []string) (string, error) {
	if len(violationIDs) == 0 {
		return "No violations selected.", nil
	}

	violations, err := m.store.GetViolations(ctx, jobID, violationIDs)
	if err != nil {
		return "", fmt.Errorf("error loading violations: %w", err)
	}

	var b strings.Builder
	b.WriteString("GOOGLE ADS TRADEMARK COMPLAINT - EVIDENCE PACK\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", m.now().Format("2006-01-02 15:04 UTC"))

	for _, v := range violations {
		fmt.Fprintf(&b, "--- Violation %s ---\n", v.ID)
		fmt.Fprintf(&b, "Advertiser: %s\n", v.Advertiser)
		fmt.Fprintf(&b, "Matched term: %s\n", v.MatchedAsset)
		fmt.Fprintf(&b, "Snippet: %s\n", v.MatchedSnippet)
		fmt.Fprintf(&b, "Date captured: %s\n\n", v.CapturedAt.UTC().Format("2006-01-02 15:04:05"))
	}

	fmt.Fprintf(&b, "Use this document to support your complaint at %s", complaintHelpURL)
	return b.String(), nil
}
