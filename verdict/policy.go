package verdict

import (
	"fmt"
	"strings"
	"time"

	"modsecmon/alert"
	"modsecmon/bancache"
	"modsecmon/ipaddresses"
	"modsecmon/reputation"
)

// Verdict is the outcome for one address.
type Verdict string

// Verdicts, printed verbatim on the primary output.
const (
	Allow Verdict = "ALLOW"
	Block Verdict = "BLOCK"
)

// Reason tells which policy step produced a verdict.
type Reason string

// Reasons
const (
	ReasonNoAddress      Reason = "no_address"
	ReasonAllowlisted    Reason = "allowlisted"
	ReasonSpecialPurpose Reason = "special_purpose"
	ReasonBanned         Reason = "banned"
	ReasonFlagged        Reason = "flagged"
	ReasonClean          Reason = "clean"
)

// Default thresholds
const (
	DefaultMinTotalFlags     = 2
	DefaultMinFlaggedVendors = 2
)

// errAllProvidersFailed is reported in an error alert; the verdict itself leans ALLOW.
const errAllProvidersFailed = "all reputation providers failed"

// IntentKind is a side effect a decision asks for.
type IntentKind int

const (
	_ IntentKind = iota
	// PersistBan asks for the address to be added to the ban list and the list saved.
	PersistBan
	// SendAlert asks for Alert to be delivered to the alert sink.
	SendAlert
)

// Intent is one side effect to carry out after a decision.
type Intent struct {
	Kind    IntentKind
	Address string
	TTL     time.Duration
	Alert   alert.Alert
}

// Decision is a verdict with everything that led to it.
// Signals and the derived counts are only set when providers were queried.
type Decision struct {
	Address        string              `json:"ip"`
	Verdict        Verdict             `json:"verdict"`
	Reason         Reason              `json:"reason"`
	Signals        []reputation.Result `json:"signals,omitempty"`
	FlaggedVendors int                 `json:"flaggedVendors"`
	TotalFlags     int                 `json:"totalFlags"`
	Country        string              `json:"country,omitempty"`
	Intents        []Intent            `json:"-"`
}

// Locator maps an address to its country code, "" when unknown.
type Locator interface {
	Country(addr string) string
}

// Policy holds the decision rules.
type Policy struct {
	Allowlist              *ipaddresses.Set
	Locator                Locator
	AllowSpecialPurpose    bool
	// AlertOnProviderFailure sends an error alert when every provider failed. The verdict stays ALLOW.
	AlertOnProviderFailure bool
	BanTTL                 time.Duration
	MinTotalFlags          int
	MinFlaggedVendors      int
}

// DefaultPolicy blocks on two flags in total or two flagging vendors, and bans for a day.
func DefaultPolicy() Policy {
	allowlist, _ := ipaddresses.NewSet(nil)
	return Policy{
		Allowlist:         allowlist,
		BanTTL:            bancache.DefaultTTL,
		MinTotalFlags:     DefaultMinTotalFlags,
		MinFlaggedVendors: DefaultMinFlaggedVendors,
	}
}

// Precheck applies the rules that need neither the ban list nor the providers.
// done is false when the address has to go through the ban list and the providers.
func (p Policy) Precheck(addr string) (d Decision, done bool) {
	d = Decision{Address: addr, Verdict: Allow}

	switch {
	case strings.TrimSpace(addr) == "":
		d.Reason = ReasonNoAddress
		return d, true
	case p.Allowlist != nil && p.Allowlist.Contains(addr):
		d.Reason = ReasonAllowlisted
		return d, true
	case p.AllowSpecialPurpose:
		if special, _ := ipaddresses.IsSpecialPurposeAddress(addr); special {
			d.Reason = ReasonSpecialPurpose
			return d, true
		}
	}

	return d, false
}

// Banned is the decision for an address found in the ban list. It was alerted on when first banned.
func (p Policy) Banned(addr string) Decision {
	return Decision{Address: addr, Verdict: Block, Reason: ReasonBanned}
}

// Judge decides on fresh provider results. It has no side effects; the returned
// Decision lists the intents the caller has to carry out.
func (p Policy) Judge(addr string, results []reputation.Result) (d Decision) {
	d = Decision{Address: addr, Signals: results}
	if p.Locator != nil {
		d.Country = p.Locator.Country(addr)
	}

	failed := 0
	for _, r := range results {
		if r.Count > 0 {
			d.FlaggedVendors++
		}
		d.TotalFlags += r.Count
		if !r.OK {
			failed++
		}
	}

	if d.TotalFlags >= p.MinTotalFlags || d.FlaggedVendors >= p.MinFlaggedVendors {
		d.Verdict = Block
		d.Reason = ReasonFlagged
		d.Intents = []Intent{
			{Kind: PersistBan, Address: addr, TTL: p.BanTTL},
			{Kind: SendAlert, Address: addr, Alert: p.alertFor(d, "")},
		}
		return
	}

	d.Verdict = Allow
	d.Reason = ReasonClean
	if p.AlertOnProviderFailure && len(results) > 0 && failed == len(results) {
		d.Intents = []Intent{
			{Kind: SendAlert, Address: addr, Alert: p.alertFor(d, errAllProvidersFailed)},
		}
	}
	return
}

func (p Policy) alertFor(d Decision, errMsg string) alert.Alert {
	return alert.Alert{
		Address:        d.Address,
		Signals:        d.Signals,
		FlaggedVendors: d.FlaggedVendors,
		TotalFlags:     d.TotalFlags,
		Country:        d.Country,
		Error:          errMsg,
	}
}

// String is used in diagnostics.
func (d Decision) String() string {
	return fmt.Sprintf("%s ip=%s reason=%s vendors=%d total=%d", d.Verdict, d.Address, d.Reason, d.FlaggedVendors, d.TotalFlags)
}
