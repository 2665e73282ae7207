package tool

// SecurityMode selects how a Security policy interprets its list.
type SecurityMode int

const (
	// AllowAll permits every tool name; the list is ignored.
	AllowAll SecurityMode = iota
	// AllowList permits only names present in the list.
	AllowList
	// BlockList permits every name except those present in the list.
	BlockList
)

// Security gates which tools the tool_execute activity may invoke,
// independent of the WASM sandbox's capability profile: this governs
// which tools are callable at all, the sandbox governs what a
// running tool may touch once called.
type Security struct {
	Mode SecurityMode
	List []string
}

// AllowAllTools is the permissive default: every registered tool is
// callable.
func AllowAllTools() Security { return Security{Mode: AllowAll} }

// NewAllowList permits only the named tools.
func NewAllowList(names ...string) Security {
	return Security{Mode: AllowList, List: names}
}

// NewBlockList permits every tool except the named ones.
func NewBlockList(names ...string) Security {
	return Security{Mode: BlockList, List: names}
}

// Allows reports whether name may be invoked under this policy.
func (s Security) Allows(name string) bool {
	switch s.Mode {
	case AllowList:
		return contains(s.List, name)
	case BlockList:
		return !contains(s.List, name)
	default:
		return true
	}
}

func contains(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}
