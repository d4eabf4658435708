package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/httpapi"
	"github.com/xraph/credits/reservation"
)

// maxUpstreamBody caps what is read back from the generation service.
const maxUpstreamBody = 8 << 20

// newGeneratorFactory returns generators that POST the action input to
// upstream/{action}. Without an upstream the input is echoed back, which
// is enough to exercise billing end to end.
func newGeneratorFactory(upstream string, client *http.Client) httpapi.GeneratorFactory {
	upstream = strings.TrimRight(upstream, "/")
	return func(action reservation.Action, input json.RawMessage) (credits.Generator, error) {
		if upstream == "" {
			return credits.GeneratorFunc(func(context.Context) (any, error) {
				return map[string]any{"action": action, "input": input}, nil
			}), nil
		}
		return credits.GeneratorFunc(func(ctx context.Context) (any, error) {
			return callUpstream(ctx, client, upstream+"/"+string(action), input)
		}), nil
	}
}

func callUpstream(ctx context.Context, client *http.Client, url string, input json.RawMessage) (any, error) {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(input))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, fmt.Errorf("upstream %s: read body: %w", url, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("upstream %s: status %d", url, resp.StatusCode)
	}

	var out any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("upstream %s: decode: %w", url, err)
	}
	return out, nil
}
