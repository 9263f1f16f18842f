package ui

import (
	"errors"
	"strings"
)

// MaxCallbackDataLen is Telegram's limit for inline button callback data.
const MaxCallbackDataLen = 64

type Kind string

const (
	KindPair      Kind = "p"
	KindCandidate Kind = "c"
	KindFind      Kind = "f"
)

type Verb string

const (
	VerbConfirm Verb = "ok"
	VerbCancel  Verb = "no"
	VerbPick    Verb = "pick"
	VerbCurrent Verb = "cur"
	VerbNext    Verb = "next"
)

// Action is a decoded button press. ID is empty for find actions.
type Action struct {
	Kind Kind
	Verb Verb
	ID   string
}

var (
	errInvalidPrefix       = errors.New("invalid callback prefix")
	errInvalidAction       = errors.New("invalid callback action")
	errInvalidID           = errors.New("invalid callback id")
	errCallbackDataTooLong = errors.New("callback data too long")
)

func BuildConfirmPairCallback(pairID string) (string, error) {
	return buildIDCallback(KindPair, VerbConfirm, pairID)
}

func BuildCancelPairCallback(pairID string) (string, error) {
	return buildIDCallback(KindPair, VerbCancel, pairID)
}

func BuildPickCandidateCallback(userID string) (string, error) {
	return buildIDCallback(KindCandidate, VerbPick, userID)
}

func BuildFindCallback(nextWeek bool) (string, error) {
	verb := VerbCurrent
	if nextWeek {
		verb = VerbNext
	}
	return validateCallbackData(string(KindFind) + ":" + string(verb))
}

func ParseCallbackData(data string) (Action, error) {
	if data == "" {
		return Action{}, errInvalidAction
	}
	if len(data) > MaxCallbackDataLen {
		return Action{}, errCallbackDataTooLong
	}

	parts := strings.Split(data, ":")
	switch Kind(parts[0]) {
	case KindPair:
		if len(parts) != 3 {
			return Action{}, errInvalidAction
		}
		verb := Verb(parts[1])
		if verb != VerbConfirm && verb != VerbCancel {
			return Action{}, errInvalidAction
		}
		return parseIDAction(KindPair, verb, parts[2])
	case KindCandidate:
		if len(parts) != 3 || Verb(parts[1]) != VerbPick {
			return Action{}, errInvalidAction
		}
		return parseIDAction(KindCandidate, VerbPick, parts[2])
	case KindFind:
		if len(parts) != 2 {
			return Action{}, errInvalidAction
		}
		verb := Verb(parts[1])
		if verb != VerbCurrent && verb != VerbNext {
			return Action{}, errInvalidAction
		}
		return Action{Kind: KindFind, Verb: verb}, nil
	default:
		return Action{}, errInvalidPrefix
	}
}

func buildIDCallback(kind Kind, verb Verb, id string) (string, error) {
	if !isCallbackID(id) {
		return "", errInvalidID
	}
	return validateCallbackData(string(kind) + ":" + string(verb) + ":" + id)
}

func parseIDAction(kind Kind, verb Verb, id string) (Action, error) {
	if !isCallbackID(id) {
		return Action{}, errInvalidID
	}
	return Action{Kind: kind, Verb: verb, ID: id}, nil
}

func validateCallbackData(data string) (string, error) {
	if data == "" {
		return "", errInvalidAction
	}
	if len(data) > MaxCallbackDataLen {
		return "", errCallbackDataTooLong
	}
	return data, nil
}

// isCallbackID accepts UUID-like identifiers: ASCII letters, digits and '-'.
func isCallbackID(value string) bool {
	if value == "" {
		return false
	}
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '-':
		default:
			return false
		}
	}
	return true
}
