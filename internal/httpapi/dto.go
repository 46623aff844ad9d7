package httpapi

import (
	ctxpkg "github.com/stupiduntilnot/lyra/internal/context"
	modelpkg "github.com/stupiduntilnot/lyra/internal/model"
)

type SubmitRequest struct {
	Text string `json:"text"`
}

type SubmitResponse struct {
	Reply string             `json:"reply"`
	Meta  *modelpkg.CallMeta `json:"meta,omitempty"`
}

type TranscriptResponse struct {
	Busy     bool             `json:"busy"`
	Messages []ctxpkg.Message `json:"messages"`
}

type PersonaResponse struct {
	Name        string `json:"name"`
	StarterHint string `json:"starter_hint"`
}

type ImportResponse struct {
	Imported int `json:"imported"`
	Length   int `json:"length"`
}
