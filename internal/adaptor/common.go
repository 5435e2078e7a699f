package adaptor

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"
)

// ApplyModelMap rewrites the top-level "model" field of body according
// to modelMap (client-model-name -> upstream-model-name). If the model
// isn't present in modelMap, or body has no "model" field, body is
// returned unchanged.
func ApplyModelMap(body []byte, modelMap map[string]string) ([]byte, error) {
	if len(modelMap) == 0 {
		return body, nil
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(body, &generic); err != nil {
		return nil, errors.Wrap(err, "decode request body for model mapping")
	}
	raw, ok := generic["model"]
	if !ok {
		return body, nil
	}
	var clientModel string
	if err := json.Unmarshal(raw, &clientModel); err != nil {
		return body, nil
	}
	upstreamModel, ok := modelMap[clientModel]
	if !ok {
		return body, nil
	}
	mapped, err := json.Marshal(upstreamModel)
	if err != nil {
		return nil, err
	}
	generic["model"] = mapped
	return json.Marshal(generic)
}

// StripField removes a top-level field from a JSON object body, used by
// adapters that must drop parameters an upstream rejects (e.g. Jina
// rejecting top_k after Anthropic->OpenAI translation).
func StripField(body []byte, field string) ([]byte, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(body, &generic); err != nil {
		return nil, errors.Wrap(err, "decode request body to strip field")
	}
	if _, ok := generic[field]; !ok {
		return body, nil
	}
	delete(generic, field)
	return json.Marshal(generic)
}
