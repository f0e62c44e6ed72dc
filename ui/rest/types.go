package rest

// ResponseData is the uniform REST response envelope.
type ResponseData struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Results any    `json:"results,omitempty"`
}

type AllowlistEntryResponse struct {
	Phone     string `json:"phone"`
	RawID     string `json:"raw_id,omitempty"`
	Label     string `json:"label,omitempty"`
	CreatedAt string `json:"created_at"`
}

type GroupEntryResponse struct {
	GroupID   string `json:"group_id"`
	Label     string `json:"label,omitempty"`
	Allowed   bool   `json:"allowed"`
	Mode      string `json:"mode"`
	CreatedAt string `json:"created_at"`
}

type StatusResponse struct {
	State   string `json:"state"`
	QRCode  string `json:"qr_code,omitempty"`
	Account string `json:"account,omitempty"`
	Workers any    `json:"workers,omitempty"`
}
