package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/scottdmilner/pipebot/internal/notify"
)

// Handler kinds accepted in endpoint configuration.
const (
	HandlerRelay        = "relay"
	HandlerModelChecker = "model_checker"
)

// HandlerFunc turns a verified request body into a chat message. It returns
// an error wrapping ErrMalformedPayload when the body cannot be used.
type HandlerFunc func(body []byte, now time.Time) (notify.Message, error)

func handlerFor(kind string) (HandlerFunc, error) {
	switch kind {
	case HandlerRelay:
		return relayHandler, nil
	case HandlerModelChecker:
		return modelCheckerHandler, nil
	default:
		return nil, fmt.Errorf("unknown handler %q", kind)
	}
}

const (
	fenceOpen  = "```json\n"
	fenceClose = "\n```"
)

// relayHandler posts the payload as an indented JSON code block. Payloads too
// long for one message are cut inside the block so the fence stays closed.
func relayHandler(body []byte, _ time.Time) (notify.Message, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		return notify.Message{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	limit := notify.MaxContentLength - utf8.RuneCountInString(fenceOpen+fenceClose)
	return notify.Message{Content: fenceOpen + clip(buf.String(), limit) + fenceClose}, nil
}

// clip shortens s to at most limit runes, ending the cut with an ellipsis.
func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}

// modelCheckerHandler reports a model exported without passing the checker.
func modelCheckerHandler(body []byte, now time.Time) (notify.Message, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return notify.Message{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	fields := make(map[string]string, 3)
	for _, name := range []string{"asset", "user", "path"} {
		raw, ok := payload[name]
		if !ok || string(raw) == "null" {
			return notify.Message{}, fmt.Errorf("%w: missing field %q", ErrMalformedPayload, name)
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return notify.Message{}, fmt.Errorf("%w: field %q must be a string", ErrMalformedPayload, name)
		}
		fields[name] = value
	}

	return notify.Message{
		Embed: &notify.Embed{
			Title: "Model Publish Override",
			Description: fmt.Sprintf("Notice! The model **%s** was exported without passing "+
				"the model checker by user **%s**. File saved to path: `%s`.",
				fields["asset"], fields["user"], fields["path"]),
			Color:     notify.ColorYellow,
			Timestamp: now,
		},
	}, nil
}
