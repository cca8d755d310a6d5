package apierrors

// Envelope is §7's stable edge-response shape: `{error, status,
// details?}`.
type Envelope struct {
	Error   string   `json:"error"`
	Status  int      `json:"status"`
	Details []Detail `json:"details,omitempty"`
}

// Envelope renders e as the wire body described in §7.
func (e *Error) Envelope() Envelope {
	return Envelope{
		Error:   e.Message,
		Status:  e.Status(),
		Details: e.Details,
	}
}
