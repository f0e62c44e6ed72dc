// Package control holds the request payloads of the REST control
// surface.
package control

type SendRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type PairingApproveRequest struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

type AllowlistRequest struct {
	Phone string `json:"phone"`
	RawID string `json:"raw_id"`
	Label string `json:"label"`
}

type GroupRequest struct {
	GroupID string `json:"group_id"`
	Label   string `json:"label"`
	Allowed *bool  `json:"allowed"`
	Mode    string `json:"mode"`
}
