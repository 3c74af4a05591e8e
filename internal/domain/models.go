package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Host is a hostname or IP literal as read from the input list.
type Host string

// NewHost trims s and reports whether anything is left.
func NewHost(s string) (Host, bool) {
	s = strings.TrimSpace(s)
	return Host(s), s != ""
}

// ProbeKind names one of the three reachability checks.
type ProbeKind string

const (
	ProbePing ProbeKind = "ping"
	ProbeDNS  ProbeKind = "dns"
	ProbePort ProbeKind = "port"
)

// Status is the variant of a ProbeOutcome.
type Status int

const (
	StatusFailure Status = iota
	StatusSuccess
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusTimeout:
		return "timeout"
	default:
		return "failure"
	}
}

// Report values written to the CSV. Timeout and Failure both collapse to FAIL.
const (
	ReportOK   = "OK"
	ReportFail = "FAIL"
)

// ProbeOutcome is the result of one probe against one host.
type ProbeOutcome struct {
	Status  Status
	Reason  string // diagnostic only, never written to the CSV
	Latency time.Duration
}

func (o ProbeOutcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Status    string  `json:"status"`
		Detail    string  `json:"detail"`
		Reason    string  `json:"reason,omitempty"`
		LatencyMS float64 `json:"latency_ms"`
	}{
		Status:    o.ReportStatus(),
		Detail:    o.Status.String(),
		Reason:    o.Reason,
		LatencyMS: float64(o.Latency.Microseconds()) / 1000,
	})
}

func Success(latency time.Duration, reason string) ProbeOutcome {
	return ProbeOutcome{Status: StatusSuccess, Latency: latency, Reason: reason}
}

func Failure(latency time.Duration, reason string) ProbeOutcome {
	return ProbeOutcome{Status: StatusFailure, Latency: latency, Reason: reason}
}

func Timeout(latency time.Duration) ProbeOutcome {
	return ProbeOutcome{Status: StatusTimeout, Latency: latency, Reason: "timeout"}
}

func (o ProbeOutcome) OK() bool { return o.Status == StatusSuccess }

// ReportStatus maps the outcome to "OK" or "FAIL".
func (o ProbeOutcome) ReportStatus() string {
	if o.OK() {
		return ReportOK
	}
	return ReportFail
}

// HostResult aggregates the three probe outcomes for one host.
type HostResult struct {
	Host Host         `json:"host"`
	Ping ProbeOutcome `json:"ping"`
	DNS  ProbeOutcome `json:"dns"`
	Port ProbeOutcome `json:"port"`
}

// Outcome returns the outcome recorded for kind.
func (r HostResult) Outcome(kind ProbeKind) ProbeOutcome {
	switch kind {
	case ProbePing:
		return r.Ping
	case ProbeDNS:
		return r.DNS
	default:
		return r.Port
	}
}

// SweepResult holds one HostResult per input host, in input order.
type SweepResult struct {
	ID         string       `json:"sweep_id"`
	Results    []HostResult `json:"results"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Count returns how many hosts passed the given probe.
func (s SweepResult) Count(kind ProbeKind) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome(kind).OK() {
			n++
		}
	}
	return n
}

// HostState tracks a host through a sweep: Pending -> Running -> Done.
type HostState int

const (
	StatePending HostState = iota
	StateRunning
	StateDone
)

func (s HostState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	default:
		return "pending"
	}
}
