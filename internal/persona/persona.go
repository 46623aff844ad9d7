// Package persona holds the static character record the session is seeded
// with. Personas are plain data; there is no templating.
package persona

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Persona is immutable once handed to a session.
type Persona struct {
	Name         string `yaml:"name"`
	SystemPrompt string `yaml:"system_prompt"`
	StarterHint  string `yaml:"starter_hint"`
}

// Default returns the built-in Floria persona.
func Default() Persona {
	return Persona{
		Name: "フローリア",
		SystemPrompt: "あなたは水と氷の精霊フローリアです。世界中を旅する旅人の伴侶として、" +
			"旅の途中の宿でともに一夜を過ごしています。" +
			"落ち着いた柔らかな口調で、旅人の言葉に寄り添い、物語の続きを自然な日本語で紡いでください。",
		StarterHint: "（宿の窓辺で雪を眺めながら）「フローリア、今夜は冷えるね。少し話をしようか」",
	}
}

// Load reads a persona from a YAML file. Name and system_prompt are required.
func Load(path string) (Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, errors.Wrapf(err, "read persona file %s", path)
	}
	return Parse(data)
}

// Parse decodes a YAML persona document.
func Parse(data []byte) (Persona, error) {
	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Persona{}, errors.Wrap(err, "parse persona")
	}
	if strings.TrimSpace(p.Name) == "" {
		return Persona{}, errors.New("persona: name is required")
	}
	if strings.TrimSpace(p.SystemPrompt) == "" {
		return Persona{}, errors.New("persona: system_prompt is required")
	}
	return p, nil
}
