// Package tgui provides small Telegram UI helpers: inline keyboard builders,
// callback data packing, and HTML-safe text rendering for ParseMode="HTML".
package tgui

import (
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes for the
// full "scope:action:payload" string.
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// Inline is a small builder for inline keyboards (ReplyMarkup).
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends a new row of buttons to the keyboard.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Markup returns the underlying reply markup.
func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

// Btn creates a callback button with raw callback_data.
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}

// URLBtn creates a URL button.
func URLBtn(text, url string) tele.Btn {
	return tele.Btn{Text: text, URL: url}
}

// ConfirmInline builds a simple 2-button confirm keyboard.
func ConfirmInline(yes, no tele.Btn) *Inline {
	return NewInline().Row(yes, no)
}

// Data formats callback data as "scope:action" or "scope:action:payload".
// The payload is kept as-is. Returns ErrCallbackDataTooLong when the packed
// string exceeds MaxCallbackDataLen bytes; Telegram rejects such buttons at
// send time.
func Data(scope, action, payload string) (string, error) {
	scope = strings.TrimSpace(scope)
	action = strings.TrimSpace(action)
	data := scope + ":" + action
	if payload != "" {
		data += ":" + payload
	}
	if len(data) > MaxCallbackDataLen {
		return "", fmt.Errorf("%w: %d bytes", ErrCallbackDataTooLong, len(data))
	}
	return data, nil
}

// MustData is Data for values known to fit, typically constants. It panics on
// oversized input.
func MustData(scope, action, payload string) string {
	data, err := Data(scope, action, payload)
	if err != nil {
		panic(err)
	}
	return data
}

// SplitData parses callback data produced by Data. The payload part may
// itself contain colons.
func SplitData(data string) (scope, action, payload string) {
	parts := strings.SplitN(data, ":", 3)
	switch len(parts) {
	case 3:
		payload = parts[2]
		fallthrough
	case 2:
		action = parts[1]
		fallthrough
	case 1:
		scope = parts[0]
	}
	return
}
