package scanning

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/zombor/meter-tracker/internal/common"
)

// extractJSONObject returns the first balanced {...} object embedded in model output.
// Braces inside JSON strings are ignored.
func extractJSONObject(text string) (string, bool) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	for start := strings.IndexByte(text, '{'); start >= 0; {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(text); i++ {
			c := text[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					candidate := text[start : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate, true
					}
					i = len(text)
				}
			}
		}

		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// parseExtraction turns raw model output into a validated Extraction
func parseExtraction(text string) (*Extraction, error) {
	obj, ok := extractJSONObject(text)
	if !ok {
		return nil, common.NoStructuredResult("no JSON object found in response", nil)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(obj)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, common.NoStructuredResult("decoding response object", err)
	}

	if err := checkResponse(raw); err != nil {
		return nil, common.NoStructuredResult("response is not a meter extraction", err)
	}
	// field level deviations are repaired by Validate
	if err := checkShape(raw); err != nil {
		slog.Warn("scan response deviates from meter schema", "error", err)
	}

	ext, err := Validate(raw)
	if err != nil {
		return nil, common.NoStructuredResult("validating response object", err)
	}
	return &ext, nil
}
