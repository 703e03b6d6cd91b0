package logging

import "modsecmon/reputation"

type decisionLogEntry struct {
	Time          string              `json:"time"`
	OperationName string              `json:"operationName"`
	Category      string              `json:"category"`
	Properties    decisionLogProperty `json:"properties"`
}

type decisionLogProperty struct {
	ClientIP       string              `json:"clientIp"`
	Action         string              `json:"action"`
	Reason         string              `json:"reason"`
	FlaggedVendors int                 `json:"flaggedVendors"`
	TotalFlags     int                 `json:"totalFlags"`
	Signals        []reputation.Result `json:"signals"`
	Country        string              `json:"country,omitempty"`
	Hostname       string              `json:"hostname"`
}
