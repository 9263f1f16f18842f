package queue

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// Button is one inline keyboard button. Exactly one of CallbackData and URL
// is expected to be set.
type Button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// ActionPayload is the optional keyboard attached to a queued message, stored
// in the shape of a Telegram inline keyboard.
type ActionPayload struct {
	InlineKeyboard [][]Button `json:"inline_keyboard"`
}

// Row is a convenience constructor for a single keyboard row.
func Row(buttons ...Button) []Button {
	return buttons
}

func Keyboard(rows ...[]Button) *ActionPayload {
	return &ActionPayload{InlineKeyboard: rows}
}

func encodeAction(action *ActionPayload) (datatypes.JSON, error) {
	if action == nil || len(action.InlineKeyboard) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(action)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func decodeAction(raw datatypes.JSON) (*ActionPayload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var action ActionPayload
	if err := json.Unmarshal(raw, &action); err != nil {
		return nil, err
	}
	return &action, nil
}
