package postmortem

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// JSON renders pm as indented JSON.
func JSON(pm *Postmortem) ([]byte, error) {
	b, err := json.MarshalIndent(pm, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal postmortem: %w", err)
	}
	return append(b, '\n'), nil
}

// Markdown renders pm as a human-readable report.
func Markdown(pm *Postmortem) []byte {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}
	list := func(items []string) {
		for _, it := range items {
			line("- %s", it)
		}
	}

	line("# %s", pm.Title)
	line("**Date:** %s", pm.Date)
	line("**Incident ID:** %s", pm.IncidentID)
	line("")

	line("## Summary")
	line("- **Severity:** %s", pm.Summary.Severity)
	line("- **Duration:** %s", pm.Summary.Duration)
	line("- **Services Affected:** %s", strings.Join(pm.Summary.ServicesAffected, ", "))
	line("- **User Impact:** %s", pm.Summary.UserImpact)
	line("")

	line("## Timeline")
	for _, e := range pm.Timeline {
		line("- **%s** - %s: %s (%s)", e.Time.UTC().Format(time.RFC3339), e.Event, e.Details, e.User)
	}
	line("")

	line("## Root Cause")
	line("**Primary Cause:** %s", pm.RootCause.PrimaryCause)
	line("")
	line("### Contributing Factors:")
	list(pm.RootCause.ContributingFactors)
	line("")

	line("## Resolution")
	line("### Immediate Actions:")
	list(pm.Resolution.ImmediateActions)
	line("")
	line("**Resolution Method:** %s", pm.Resolution.ResolutionMethod)
	line("")

	line("## Lessons Learned")
	line("*(Fill this out during team review)*")
	line("- What went well:")
	list(pm.LessonsLearned.WhatWentWell)
	line("- What could be improved:")
	list(pm.LessonsLearned.WhatCouldBeImproved)
	line("")

	line("## Follow-up Actions")
	line("- [ ] Update documentation")
	line("- [ ] Conduct RCA review")
	for _, a := range pm.FollowUpActions {
		line("- [ ] %s", a)
	}

	return []byte(b.String())
}

// Files names the artifacts written for one postmortem.
type Files struct {
	JSON     string
	Markdown string
}

// Write renders pm in both formats into dir as postmortem_<id>.json and
// postmortem_<id>.md.
func Write(dir string, pm *Postmortem) (Files, error) {
	if strings.ContainsAny(pm.IncidentID, `/\`) || pm.IncidentID == "" || pm.IncidentID == ".." {
		return Files{}, fmt.Errorf("unsafe incident id %q for file name", pm.IncidentID)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Files{}, fmt.Errorf("create output dir: %w", err)
	}

	js, err := JSON(pm)
	if err != nil {
		return Files{}, err
	}

	files := Files{
		JSON:     filepath.Join(dir, "postmortem_"+pm.IncidentID+".json"),
		Markdown: filepath.Join(dir, "postmortem_"+pm.IncidentID+".md"),
	}
	if err := os.WriteFile(files.JSON, js, 0o600); err != nil {
		return Files{}, fmt.Errorf("write %s: %w", files.JSON, err)
	}
	if err := os.WriteFile(files.Markdown, Markdown(pm), 0o600); err != nil {
		return Files{}, fmt.Errorf("write %s: %w", files.Markdown, err)
	}
	return files, nil
}
