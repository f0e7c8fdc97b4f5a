package shopbot

import "github.com/rs/zerolog/log"

// List of tools that don't require explicit user approval
var autoApprovedTools = map[string]bool{
	"product_search": true,
}

// Tool_Approver reports whether a tool may run unattended. Only read-only
// catalog tools are on the list; anything else is refused.
func Tool_Approver(tool_name string, tool_args map[string]interface{}) (bool, error) {
	if approved, exists := autoApprovedTools[tool_name]; exists && approved {
		log.Debug().Str("tool", tool_name).Int("args", len(tool_args)).Msg("auto-approving tool")
		return true, nil
	}
	log.Warn().Str("tool", tool_name).Msg("tool is not auto-approved")
	return false, nil
}
