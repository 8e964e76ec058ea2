package healthcheck

// Status is the classified result of a probe.
type Status string

const (
	StatusOnline            Status = "online"
	StatusOffline           Status = "offline"
	StatusTimeout           Status = "timeout"
	StatusDNSError          Status = "dns_error"
	StatusConnectionRefused Status = "connection_refused"
	StatusError             Status = "error"
	StatusChecking          Status = "checking"
)

var statuses = map[Status]struct{}{
	StatusOnline:            {},
	StatusOffline:           {},
	StatusTimeout:           {},
	StatusDNSError:          {},
	StatusConnectionRefused: {},
	StatusError:             {},
	StatusChecking:          {},
}

// Valid reports whether s belongs to the closed set of statuses.
func (s Status) Valid() bool {
	_, ok := statuses[s]
	return ok
}

// IsIssue reports whether the status counts against an endpoint. Online and
// checking are not issues.
func (s Status) IsIssue() bool {
	switch s {
	case StatusOffline, StatusError, StatusTimeout, StatusDNSError, StatusConnectionRefused:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Method records which attempt produced an outcome.
type Method string

const (
	MethodHead     Method = "head"
	MethodGet      Method = "get"
	MethodImage    Method = "image"
	MethodProxyAPI Method = "proxy-api"
)
