package mempool

import "fmt"

// StatusCode is the admission outcome reported back to a submitter.
type StatusCode int

const (
	Accepted StatusCode = iota
	MempoolIsFull
	TooManyTransactions
	InvalidSeqNumber
	InvalidUpdate
	SequenceNumberTooOld
	UnknownStatus
)

func (c StatusCode) String() string {
	switch c {
	case Accepted:
		return "Accepted"
	case MempoolIsFull:
		return "MempoolIsFull"
	case TooManyTransactions:
		return "TooManyTransactions"
	case InvalidSeqNumber:
		return "InvalidSeqNumber"
	case InvalidUpdate:
		return "InvalidUpdate"
	case SequenceNumberTooOld:
		return "SequenceNumberTooOld"
	default:
		return "UnknownStatus"
	}
}

func (c StatusCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *StatusCode) UnmarshalText(text []byte) error {
	for code := Accepted; code < UnknownStatus; code++ {
		if code.String() == string(text) {
			*c = code
			return nil
		}
	}
	*c = UnknownStatus
	return nil
}

// Status pairs a code with an optional human readable message.
type Status struct {
	Code    StatusCode `json:"code"`
	Message string     `json:"message,omitempty"`
}

func NewStatus(code StatusCode) Status {
	return Status{Code: code}
}

func (s Status) WithMessage(format string, args ...any) Status {
	s.Message = fmt.Sprintf(format, args...)
	return s
}

func (s Status) String() string {
	if s.Message == "" {
		return s.Code.String()
	}
	return fmt.Sprintf("%s: %s", s.Code, s.Message)
}

// TimelineState tracks whether a transaction has been broadcast on the timeline.
type TimelineState int

const (
	NonQualified TimelineState = iota
	NotReady
	Ready
)
