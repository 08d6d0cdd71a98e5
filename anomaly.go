package sentinel

import (
	"github.com/sentinelauth/sentinel/session"
)

// Severity grades how far a login deviates from the account's recent
// history.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "none"
	}
}

// AnomalySignal is the outcome of comparing a login against recent
// sessions.
type AnomalySignal struct {
	Severity Severity
	NewIP    bool
	NewUA    bool
}

// assessAnomaly compares the incoming IP and user-agent fingerprint
// against the recent session history. An empty history (first login)
// reports no anomaly; there is nothing to deviate from.
func assessAnomaly(recent []*session.Record, ip, fingerprint string) AnomalySignal {
	if len(recent) == 0 {
		return AnomalySignal{}
	}

	signal := AnomalySignal{NewIP: ip != "", NewUA: fingerprint != ""}
	for _, rec := range recent {
		if signal.NewIP && rec.IP == ip {
			signal.NewIP = false
		}
		if signal.NewUA && rec.DeviceHash == fingerprint {
			signal.NewUA = false
		}
		if !signal.NewIP && !signal.NewUA {
			break
		}
	}

	switch {
	case signal.NewIP && signal.NewUA:
		signal.Severity = SeverityHigh
	case signal.NewIP:
		signal.Severity = SeverityMedium
	case signal.NewUA:
		signal.Severity = SeverityLow
	}
	return signal
}
