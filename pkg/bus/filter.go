package bus

// Filter narrows the live stream to one tenant's messages and,
// optionally, a session/agent/event-type subset within it. TenantID is
// mandatory: Matches always rejects a cross-tenant message regardless
// of the other fields, per §4.5's "cross-tenant leakage is forbidden".
type Filter struct {
	TenantID   string
	SessionID  string
	AgentID    string
	EventTypes map[string]bool // empty/nil means "any type"
}

// Matches reports whether m should be delivered to a subscriber holding
// this filter.
func (f Filter) Matches(m Message) bool {
	if m.TenantID != f.TenantID {
		return false
	}
	switch m.Type {
	case MessageEventIngested:
		if m.Event == nil {
			return false
		}
		if f.SessionID != "" && m.Event.SessionID != f.SessionID {
			return false
		}
		if f.AgentID != "" && m.Event.AgentID != f.AgentID {
			return false
		}
		if len(f.EventTypes) > 0 && !f.EventTypes[string(m.Event.EventType)] {
			return false
		}
		return true
	case MessageSessionUpdated:
		if m.Session == nil {
			return false
		}
		if f.SessionID != "" && m.Session.ID != f.SessionID {
			return false
		}
		if f.AgentID != "" && m.Session.AgentID != f.AgentID {
			return false
		}
		return true
	case MessageAlertTriggered:
		return true
	default:
		return false
	}
}
