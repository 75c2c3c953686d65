package engine

import (
	"strings"

	"campaign-engine/internal/campaign"
	"campaign-engine/internal/event"
)

// MatchTrigger is the stateless trigger predicate: does the event fit
// the trigger config. No side effects.
func MatchTrigger(tc campaign.TriggerConfig, ev event.Event) bool {
	switch tc.Type {
	case campaign.TriggerTransferCredited:
		if ev.Kind != event.KindTransfer || !contains(tc.Wallets, ev.Receiver) {
			return false
		}
		if tc.LamportsExact != nil {
			if ev.Lamports != *tc.LamportsExact {
				return false
			}
		} else {
			if tc.LamportsMin != nil && ev.Lamports < *tc.LamportsMin {
				return false
			}
			if tc.LamportsMax != nil && ev.Lamports > *tc.LamportsMax {
				return false
			}
		}
		if len(tc.SenderList) > 0 && !contains(tc.SenderList, ev.Sender) {
			return false
		}
		return true

	case campaign.TriggerSignatureToAddress:
		for _, w := range tc.Wallets {
			if ev.Touches(w) {
				return true
			}
		}
		return false

	case campaign.TriggerTokenMint:
		return ev.Kind == event.KindTokenMint && contains(tc.Wallets, ev.Creator)

	case campaign.TriggerAccountCreated:
		if ev.Kind != event.KindAccountCreated {
			return false
		}
		for _, w := range tc.Wallets {
			if ev.Touches(w) {
				return true
			}
		}
		return false

	case campaign.TriggerProgramLog:
		return ev.Kind == event.KindProgramLog &&
			ev.ProgramID == tc.ProgramID &&
			strings.Contains(ev.LogLine, tc.LogPattern)
	}
	return false
}

// triggerWallet picks the wallet the instance is keyed on: the watched
// wallet the event actually matched.
func triggerWallet(tc campaign.TriggerConfig, ev event.Event) string {
	if tc.Type == campaign.TriggerProgramLog {
		return ev.SubjectWallet()
	}
	for _, w := range tc.Wallets {
		if ev.Touches(w) {
			return w
		}
	}
	return ev.SubjectWallet()
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
