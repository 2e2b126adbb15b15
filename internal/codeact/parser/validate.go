package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// structuralValidate enforces the hard-reject rules, checked before
// field-shape validation.
func structuralValidate(tool string, params map[string]any) error {
	switch tool {
	case "terminal_run":
		if _, has := params["path"]; has {
			return fmt.Errorf("terminal_run must not carry path")
		}
		if _, has := params["content"]; has {
			return fmt.Errorf("terminal_run must not carry content")
		}
	case "write_code", "write_file":
		if _, has := params["command"]; has {
			return fmt.Errorf("%s must not carry command", tool)
		}
	case "finish":
		status := strings.ToUpper(strings.TrimSpace(paramString(params["status"])))
		if status != "" && status != "SUCCESS" && status != "FAILED" {
			return fmt.Errorf("finish.status must be SUCCESS or FAILED, got %q", status)
		}
	}
	return nil
}

// argumentValidate applies per-tool field checks. Tools not listed have
// no additional field constraints beyond structural validation.
func argumentValidate(tool string, params map[string]any) error {
	switch tool {
	case "web_search":
		if strings.TrimSpace(paramString(params["query"])) == "" {
			return fmt.Errorf("web_search requires non-empty query")
		}
		if n, has := params["num_results"]; has {
			if !isPositiveInt(n) {
				return fmt.Errorf("web_search.num_results must be a positive integer")
			}
		}
	case "read_url":
		url := strings.TrimSpace(paramString(params["url"]))
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return fmt.Errorf("read_url.url must start with http:// or https://")
		}
	case "terminal_run":
		if strings.TrimSpace(paramString(params["command"])) == "" {
			return fmt.Errorf("terminal_run requires non-empty command")
		}
	case "write_code":
		if strings.TrimSpace(paramString(params["path"])) == "" {
			return fmt.Errorf("write_code requires non-empty path")
		}
	case "read_file":
		if strings.TrimSpace(paramString(params["path"])) == "" {
			return fmt.Errorf("read_file requires non-empty path")
		}
	case "mcp_tool":
		if strings.TrimSpace(paramString(params["name"])) == "" {
			return fmt.Errorf("mcp_tool requires non-empty name")
		}
		if args, has := params["arguments"]; has {
			if _, ok := args.(map[string]any); !ok {
				if s, ok := args.(string); !ok || strings.TrimSpace(s) != "" {
					return fmt.Errorf("mcp_tool.arguments must be an object")
				}
			}
		}
	}
	// finish's status/message validity is intentionally NOT enforced here:
	// a missing or invalid finish status is a soft-fail the control loop
	// corrects next turn (no retry penalty), not a hard-rejected block.
	return nil
}

func paramString(v any) string {
	s, _ := v.(string)
	return s
}

func isPositiveInt(v any) bool {
	switch t := v.(type) {
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return err == nil && n > 0
	case float64:
		return t > 0 && t == float64(int(t))
	case int:
		return t > 0
	}
	return false
}
