package model

// Agent privilege identifiers. The catalog is closed: a workflow may only
// be granted privileges listed here.
const (
	PrivilegeReadWriteFiles    = 1
	PrivilegeReadOnlyAPI       = 2
	PrivilegeReadWriteAPI      = 3
	PrivilegeRunCommands       = 4
	PrivilegeUseVersionControl = 5
	PrivilegeRunMCPTools       = 6
)

// AgentPrivilege describes one entry in the capability catalog.
type AgentPrivilege struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	DefaultEnabled bool   `json:"default_enabled"`
}

// AllPrivileges is the full capability catalog, in id order.
var AllPrivileges = []AgentPrivilege{
	{PrivilegeReadWriteFiles, "read_write_files", "Allow local filesystem read/write access", true},
	{PrivilegeReadOnlyAPI, "read_only_api", "Allow read-only API access", true},
	{PrivilegeReadWriteAPI, "read_write_api", "Allow read/write API access", false},
	{PrivilegeRunCommands, "run_commands", "Allow running any commands", false},
	{PrivilegeUseVersionControl, "use_version_control", "Allow using version control", false},
	{PrivilegeRunMCPTools, "run_mcp_tools", "Allow running MCP tools", false},
}

// DefaultPrivileges are granted when a workflow is created without an
// explicit privilege set.
var DefaultPrivileges = []int{PrivilegeReadWriteFiles, PrivilegeReadOnlyAPI}

// KnownPrivilege reports whether id is a member of the catalog.
func KnownPrivilege(id int) bool {
	for _, p := range AllPrivileges {
		if p.ID == id {
			return true
		}
	}
	return false
}

// PrivilegeSubset reports whether every element of sub is present in super.
func PrivilegeSubset(sub, super []int) bool {
	for _, id := range sub {
		found := false
		for _, other := range super {
			if id == other {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
