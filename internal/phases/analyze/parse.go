package analyze

import (
	"encoding/json"
	"fmt"
)

type sceneJSON struct {
	Quote       string `json:"quote"`
	Description string `json:"description"`
	Reasoning   string `json:"reasoning"`
}

type elementJSON struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Quote       string `json:"quote"`
}

type analysisResult struct {
	Scenes   []sceneJSON   `json:"scenes"`
	Elements []elementJSON `json:"elements"`
}

// parseResponse parses the model's JSON reply. A conforming response has
// top-level "scenes" and "elements" keys; some models instead return a
// bare array, which is tolerated and treated as the scenes list with no
// elements.
func parseResponse(raw []byte) (analysisResult, error) {
	var result analysisResult
	if err := json.Unmarshal(raw, &result); err == nil && (len(result.Scenes) > 0 || len(result.Elements) > 0) {
		return result, nil
	}

	var scenesOnly []sceneJSON
	if err := json.Unmarshal(raw, &scenesOnly); err == nil {
		return analysisResult{Scenes: scenesOnly}, nil
	}

	if err := json.Unmarshal(raw, &result); err != nil {
		return analysisResult{}, fmt.Errorf("analyze: parse model response: %w", err)
	}
	return result, nil
}
