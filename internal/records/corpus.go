// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package records

import (
	"fmt"
	"strings"

	"github.com/pdiddy/entity-eval/pkg/types"
)

const questionCount = 25

// NarrativeText serialises the circumstances of every narrative record and
// the synopsis of every vulnerability record. It is the text handed to the
// extractor.
func NarrativeText(c *types.Case) string {
	var b strings.Builder
	b.WriteString("MISSING PERSON RECORDS:\n")
	for _, r := range c.MissingPerson {
		fmt.Fprintf(&b, "\nREPORT: %s:\n", r.Get(colReportID))
		writeField(&b, "Circumstances", r.Get(colCircumstances))
	}
	b.WriteString("\nVULNERABILITY RECORDS:\n")
	for _, r := range c.Vulnerability {
		fmt.Fprintf(&b, "\nREPORT: %s:\n", r.Get(colVulnReportID))
		writeField(&b, "Description", r.Get(colSynopsis))
	}
	return b.String()
}

// SourceCorpus concatenates every free-text narrative field of the case:
// circumstances, return method and risk question explanations of the
// narrative records, and the synopsis, wellbeing comments and disability
// description of the vulnerability records. Labels and report headers are
// excluded so they cannot vouch for an extracted item.
func SourceCorpus(c *types.Case) string {
	var parts []string
	add := func(v string) {
		if v != "" && !strings.EqualFold(v, "nan") {
			parts = append(parts, strings.TrimSpace(v))
		}
	}

	for _, r := range c.MissingPerson {
		add(r.Get(colCircumstances))
		add(r.Get(colReturnMethod))
		for i := 1; i <= questionCount; i++ {
			add(r.Get(fmt.Sprintf("%s%d%s", questionPrefix, i, explanationSuffix)))
		}
	}
	for _, r := range c.Vulnerability {
		add(r.Get(colSynopsis))
		add(r.Get(colWellbeing))
		add(r.Get(colDisabilityDesc))
	}
	return strings.Join(parts, "\n")
}

func writeField(b *strings.Builder, label, value string) {
	if value == "" || strings.EqualFold(value, "nan") {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, value)
}
