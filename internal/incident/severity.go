package incident

import "github.com/linnemanlabs/warden/internal/alert"

// labelSeverity maps alert severity labels onto incident severities.
var labelSeverity = map[string]Severity{
	"critical": SeverityCritical,
	"warning":  SeverityMedium,
	"info":     SeverityLow,
}

// MapLabel maps one alert's severity label. Missing or unknown labels are medium.
func MapLabel(label string) Severity {
	if s, ok := labelSeverity[label]; ok {
		return s
	}
	return SeverityMedium
}

// AggregateSeverity returns the highest mapped severity across alerts, low when there are none.
func AggregateSeverity(alerts []alert.Alert) Severity {
	highest := SeverityLow
	for _, a := range alerts {
		if s := MapLabel(a.Severity()); s.Rank() > highest.Rank() {
			highest = s
		}
	}
	return highest
}
