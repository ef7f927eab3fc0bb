package whatsapp

// sendTextRequest is the bridge's message payload.
type sendTextRequest struct {
	Number  string `json:"number"`
	Text    string `json:"text"`
	Options struct {
		DisplayName string `json:"displayName,omitempty"`
	} `json:"options,omitempty"`
}

// sendTextResponse is the bridge's reply. The bridge reports either a
// message key or an error description, never both.
type sendTextResponse struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
}

// messageID returns whichever id field the bridge populated.
func (r sendTextResponse) messageID() string {
	if r.Key.ID != "" {
		return r.Key.ID
	}
	return r.MessageID
}
