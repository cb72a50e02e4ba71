package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/logging"
)

// maxLoggedArgument bounds each string argument written to the log.
const maxLoggedArgument = 200

// MCPRequestLogger returns middleware that logs MCP JSON-RPC traffic.
// Tool calls are logged at INFO with the tool name and scrubbed arguments,
// since they are review decisions. Other methods (initialize, tools/list) log
// at DEBUG. Tool results flagged isError and protocol errors log at WARN.
// Pass nil logger to disable logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var rpcReq jsonRPCRequest
			if err := json.Unmarshal(bodyBytes, &rpcReq); err != nil {
				logger.Debug("MCP request is not a single JSON-RPC object", zap.Error(err))
			}
			toolName := rpcReq.Params.Name
			isToolCall := rpcReq.Method == "tools/call"

			if isToolCall {
				logger.Info("MCP tool call",
					zap.String("tool", toolName),
					zap.Any("arguments", scrubArguments(rpcReq.Params.Arguments)),
				)
			} else {
				logger.Debug("MCP request", zap.String("method", rpcReq.Method))
			}

			recorder := &mcpResponseRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)

			var rpcResp jsonRPCResponse
			if err := json.Unmarshal(recorder.body.Bytes(), &rpcResp); err != nil {
				// Notifications and streamed responses have no single JSON body.
				return
			}

			switch {
			case rpcResp.Error != nil:
				logger.Warn("MCP request failed",
					zap.String("method", rpcReq.Method),
					zap.String("tool", toolName),
					zap.Int("error_code", rpcResp.Error.Code),
					zap.String("error_message", logging.SanitizeText(rpcResp.Error.Message)),
					zap.Duration("duration", duration),
				)
			case isToolCall && rpcResp.Result.IsError:
				logger.Warn("MCP tool returned an error",
					zap.String("tool", toolName),
					zap.String("result", logging.TruncateString(rpcResp.Result.firstText(), maxLoggedArgument)),
					zap.Duration("duration", duration),
				)
			case isToolCall:
				logger.Debug("MCP tool call finished",
					zap.String("tool", toolName),
					zap.Duration("duration", duration),
				)
			}
		})
	}
}

type jsonRPCRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type jsonRPCResponse struct {
	Result toolResult `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type toolResult struct {
	IsError bool `json:"isError"`
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (t toolResult) firstText() string {
	if len(t.Content) == 0 {
		return ""
	}
	return t.Content[0].Text
}

// mcpResponseRecorder tees the response body into a buffer.
type mcpResponseRecorder struct {
	http.ResponseWriter
	body bytes.Buffer
}

func (r *mcpResponseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *mcpResponseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// scrubArguments redacts credential-looking keys and strips secrets from
// string values. Nested objects such as review corrections are scrubbed too.
func scrubArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if isSensitiveKey(k) {
			out[k] = logging.RedactedText
			continue
		}
		out[k] = scrubValue(v)
	}
	return out
}

func scrubValue(v any) any {
	switch val := v.(type) {
	case string:
		return logging.TruncateString(logging.SanitizeText(val), maxLoggedArgument)
	case map[string]any:
		return scrubArguments(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = scrubValue(e)
		}
		return out
	default:
		return v
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range []string{"password", "secret", "token", "api_key", "apikey", "credential"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
