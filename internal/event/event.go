package event

import "time"

// Kind identifies the shape of a normalized chain event.
type Kind string

const (
	KindTransfer       Kind = "transfer"
	KindSignature      Kind = "signature"
	KindAccountCreated Kind = "account_created"
	KindTokenMint      Kind = "token_mint"
	KindProgramLog     Kind = "program_log"
)

// Event is one normalized unit of chain activity as delivered by the
// ingestion feed. Fields beyond Kind/Addresses/Timestamp are populated
// per kind: Lamports/Sender/Receiver for transfers, Creator for mints,
// ProgramID/LogLine for program logs.
type Event struct {
	Kind      Kind      `json:"type"`
	Addresses []string  `json:"address_set"`
	ProgramID string    `json:"program_id,omitempty"`
	Signature string    `json:"signature,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Receiver  string    `json:"receiver,omitempty"`
	Creator   string    `json:"creator,omitempty"`
	Lamports  uint64    `json:"lamports,omitempty"`
	LogLine   string    `json:"log_line,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SubjectWallet returns the address an event is primarily about, used as
// the correlation key for monitor windows.
func (e Event) SubjectWallet() string {
	switch e.Kind {
	case KindTransfer:
		return e.Receiver
	case KindTokenMint:
		if e.Creator != "" {
			return e.Creator
		}
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

// Touches reports whether the event references the given address.
func (e Event) Touches(addr string) bool {
	if e.Sender == addr || e.Receiver == addr || e.Creator == addr {
		return true
	}
	for _, a := range e.Addresses {
		if a == addr {
			return true
		}
	}
	return false
}
