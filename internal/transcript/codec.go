package transcript

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/jsonc"

	ctxpkg "github.com/stupiduntilnot/lyra/internal/context"
)

// ErrInvalidFormat is returned when an import file is not an array of objects.
var ErrInvalidFormat = errors.New("transcript: expected a JSON array of {role, content} objects")

// Record is one element of the persisted transcript file. Pointer fields
// distinguish a missing key from an empty value.
type Record struct {
	Role    *string `json:"role"`
	Content *string `json:"content"`
}

// NewRecord builds a Record from a message.
func NewRecord(m ctxpkg.Message) Record {
	role, content := m.Role, m.Content
	return Record{Role: &role, Content: &content}
}

func (r Record) message() (ctxpkg.Message, error) {
	if r.Role == nil || r.Content == nil {
		return ctxpkg.Message{}, errors.Wrap(ErrInvalidRecord, "both role and content are required")
	}
	if !ctxpkg.ValidRole(*r.Role) {
		return ctxpkg.Message{}, errors.Wrapf(ErrInvalidRecord, "unknown role %q", *r.Role)
	}
	return ctxpkg.Message{Role: *r.Role, Content: *r.Content}, nil
}

// Decode parses a transcript file. Comments and trailing commas are tolerated.
// Every element must be an object carrying both role and content.
func Decode(data []byte) ([]Record, error) {
	normalized := jsonc.ToJSON(data)
	if !bytes.HasPrefix(bytes.TrimSpace(normalized), []byte("[")) {
		return nil, ErrInvalidFormat
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(normalized, &raw); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode transcript"), ErrInvalidFormat)
	}

	records := make([]Record, 0, len(raw))
	for i, item := range raw {
		if !bytes.HasPrefix(bytes.TrimSpace(item), []byte("{")) {
			return nil, errors.Wrapf(ErrInvalidFormat, "element %d is not an object", i)
		}
		var r Record
		if err := json.Unmarshal(item, &r); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "decode element %d", i), ErrInvalidRecord)
		}
		if _, err := r.message(); err != nil {
			return nil, errors.Wrapf(err, "element %d", i)
		}
		records = append(records, r)
	}
	return records, nil
}

// Encode writes messages in the persisted transcript format.
func Encode(messages []ctxpkg.Message) ([]byte, error) {
	if messages == nil {
		messages = []ctxpkg.Message{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(messages); err != nil {
		return nil, errors.Wrap(err, "encode transcript")
	}
	return buf.Bytes(), nil
}

// Records converts messages into import records.
func Records(messages []ctxpkg.Message) []Record {
	out := make([]Record, 0, len(messages))
	for _, m := range messages {
		out = append(out, NewRecord(m))
	}
	return out
}
