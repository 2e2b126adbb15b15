package runtime

import (
	"context"
	"encoding/json"

	"codeact/internal/codeact"
	"codeact/internal/tools"
)

// RegistryMCPAdapter implements MCPAdapter against a tools.Registry
// populated by internal/mcpclient.Manager.RegisterFromConfig. The
// mcp_tool action's "name" field is the "<server>_<tool>" wrapper name the
// manager registered.
type RegistryMCPAdapter struct {
	registry tools.Registry
}

func NewRegistryMCPAdapter(reg tools.Registry) *RegistryMCPAdapter {
	return &RegistryMCPAdapter{registry: reg}
}

func (a *RegistryMCPAdapter) Call(ctx context.Context, name string, arguments map[string]any) (codeact.ActionResult, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	raw, err := json.Marshal(arguments)
	if err != nil {
		return codeact.ActionResult{}, err
	}
	out, err := a.registry.Dispatch(ctx, name, raw)
	if err != nil {
		return codeact.ActionResult{}, err
	}
	return codeact.ActionResult{Status: codeact.StatusSuccess, Content: string(out)}, nil
}
