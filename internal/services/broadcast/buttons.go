package broadcast

import (
	"errors"
	"strings"

	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/storage"
)

// MaxButtons is the largest number of URL buttons a broadcast may carry.
const MaxButtons = 8

var (
	ErrNoButtons        = errors.New("no well-formed button lines")
	ErrTooManyButtons   = errors.New("too many buttons")
	ErrUnsupportedMedia = errors.New("unsupported media type")
)

// ParseButtons parses admin button input: one button per line, "label | url".
// Lines that do not split into exactly two non-empty pipe-delimited segments
// are excluded; only well-formed lines become buttons, order preserved.
//
// Returns ErrNoButtons when nothing parses and ErrTooManyButtons when more
// than MaxButtons well-formed lines are present; in both cases the caller
// should re-prompt without advancing the draft.
func ParseButtons(input string) ([]storage.Button, error) {
	var out []storage.Button
	for _, line := range strings.Split(input, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) != 2 {
			continue
		}
		label := strings.TrimSpace(parts[0])
		url := strings.TrimSpace(parts[1])
		if label == "" || url == "" {
			continue
		}
		out = append(out, storage.Button{Label: label, URL: url})
	}
	if len(out) == 0 {
		return nil, ErrNoButtons
	}
	if len(out) > MaxButtons {
		return nil, ErrTooManyButtons
	}
	return out, nil
}
