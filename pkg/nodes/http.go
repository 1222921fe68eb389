package nodes

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/claraverse/agentflow/pkg/engine"
	"github.com/claraverse/agentflow/pkg/errors"
	"github.com/claraverse/agentflow/pkg/flow"
)

const httpBodyLimit = 4 << 20 // 4 MiB

// httpRequest fetches a URL and emits the response body as text.
func registerHTTP(reg *engine.Registry) {
	client := &http.Client{Timeout: 30 * time.Second}

	reg.Register("httpRequest", func(ctx context.Context, node flow.Node, inputs map[flow.PortType]any) (any, error) {
		url := stringConfig(node.Config, "url")
		if url == "" {
			url = asString(inputs["url"])
		}
		if url == "" {
			return nil, errors.New(errors.CodeInvalidInput, "httpRequest node requires a url", nil)
		}
		method := strings.ToUpper(stringConfig(node.Config, "method"))
		if method == "" {
			method = http.MethodGet
		}
		var body io.Reader
		if payload := asString(inputs["body"]); payload != "" {
			body = strings.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "build http request", err)
		}
		if contentType := stringConfig(node.Config, "contentType"); contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "http request failed", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, httpBodyLimit))
		if err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "read http response", err)
		}
		if resp.StatusCode >= 400 {
			return nil, errors.Newf(errors.CodeInvalidInput, "http status %d from %s", resp.StatusCode, url)
		}
		return string(data), nil
	})
}
