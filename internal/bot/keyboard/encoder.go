package keyboard

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CallbackDataSeparator = ":"
	// CallbackDataLimitBytes is Telegram's cap on callback_data.
	CallbackDataLimitBytes = 64
)

var ErrEmptyCallback = errors.New("callback data is empty")

// EncodeCallback joins an action and its optional argument into callback data.
// The action itself may not contain the separator.
func EncodeCallback(unique, data string) (string, error) {
	if unique == "" {
		return "", ErrEmptyCallback
	}
	if strings.Contains(unique, CallbackDataSeparator) {
		return "", fmt.Errorf("callback action %q contains %q", unique, CallbackDataSeparator)
	}

	payload := unique
	if data != "" {
		payload = unique + CallbackDataSeparator + data
	}

	if len(payload) > CallbackDataLimitBytes {
		return "", fmt.Errorf("callback data exceeds %d byte limit: got %d", CallbackDataLimitBytes, len(payload))
	}
	return payload, nil
}

// DecodeCallback splits callback data at the first separator.
func DecodeCallback(callbackData string) (unique, data string, err error) {
	if callbackData == "" {
		return "", "", ErrEmptyCallback
	}

	unique, data, _ = strings.Cut(callbackData, CallbackDataSeparator)
	return unique, data, nil
}
