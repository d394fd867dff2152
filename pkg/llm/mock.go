package llm

import "context"

// MockClient is a scripted Client for tests and test mode. Responses are
// consumed in order; when the script runs out the last entry repeats.
type MockClient struct {
	Responses []MockResponse
	Calls     []MockCall

	next int
}

// MockResponse is one scripted Extract result.
type MockResponse struct {
	Features map[string]any
	Usage    Usage
	Err      error
}

// MockCall records the arguments of one Extract invocation.
type MockCall struct {
	Payload string
	Fields  []string
}

func (m *MockClient) Extract(ctx context.Context, payload string, fields []string) (map[string]any, Usage, error) {
	m.Calls = append(m.Calls, MockCall{Payload: payload, Fields: fields})

	if len(m.Responses) == 0 {
		return map[string]any{}, Usage{}, nil
	}
	idx := m.next
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	m.next++

	r := m.Responses[idx]
	if r.Err != nil {
		return nil, r.Usage, r.Err
	}
	// Copy so callers mutating the merged map do not corrupt the script.
	features := make(map[string]any, len(r.Features))
	for k, v := range r.Features {
		features[k] = v
	}
	return features, r.Usage, nil
}
