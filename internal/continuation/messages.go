package continuation

import (
	"fmt"
	"strings"

	modelpkg "github.com/stupiduntilnot/lyra/internal/model"
)

// FailureMessage renders the assistant turn that stands in for a reply the
// provider could not produce.
func FailureMessage(meta modelpkg.CallMeta, personaName string) string {
	name := strings.TrimSpace(personaName)
	if name == "" {
		name = "The assistant"
	}
	switch meta.ErrorKind {
	case modelpkg.ErrorAuth:
		credential := meta.Credential
		if credential == "" {
			credential = "the API key"
		}
		return fmt.Sprintf("(The model provider rejected the credentials. Check %s and try again.)", credential)
	case modelpkg.ErrorMalformed:
		return fmt.Sprintf("(The model returned an unusable response. status=%d body=%q)", meta.Status, meta.BodyPreview)
	case modelpkg.ErrorUnavailable:
		return fmt.Sprintf("(Sorry, %s cannot reach any model right now. %s)", name, meta.Error)
	default:
		return fmt.Sprintf("(Sorry, %s could not answer just now. status=%d error=%s)", name, meta.Status, detail(meta))
	}
}

func detail(meta modelpkg.CallMeta) string {
	if meta.Error != "" {
		return meta.Error
	}
	if meta.ErrorKind != "" {
		return meta.ErrorKind
	}
	return "unknown"
}
