package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names an external binary used by the mixer or the exporters.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the resolved availability of one Requirement.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// CheckBinaries resolves every requirement against PATH, in order.
func CheckBinaries(requirements []Requirement) []Status {
	out := make([]Status, len(requirements))
	for i, req := range requirements {
		out[i] = probe(req)
	}
	return out
}

func probe(req Requirement) Status {
	st := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if st.Command == "" {
		st.Detail = "command not configured"
		return st
	}
	path, err := exec.LookPath(st.Command)
	if err != nil {
		st.Detail = fmt.Sprintf("binary %q not found", st.Command)
		return st
	}
	st.Command, st.Available = path, true
	return st
}

// Missing lists the names of unavailable, non-optional dependencies.
func Missing(statuses []Status) []string {
	var names []string
	for _, st := range statuses {
		if st.Optional || st.Available {
			continue
		}
		names = append(names, st.Name)
	}
	return names
}
