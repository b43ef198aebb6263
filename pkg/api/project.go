package api

import "encoding/json"

// projectAlias avoids recursion in UnmarshalJSON.
type projectAlias Project

type projectWire struct {
	projectAlias
	Sandbox json.RawMessage `json:"sandbox,omitempty"`
}

// UnmarshalJSON accepts both sandbox encodings the backend has used over
// time: a bare id string and a structured object.
func (p *Project) UnmarshalJSON(data []byte) error {
	var wire projectWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*p = Project(wire.projectAlias)

	if len(wire.Sandbox) == 0 || string(wire.Sandbox) == "null" {
		return nil
	}

	var id string
	if err := json.Unmarshal(wire.Sandbox, &id); err == nil {
		p.Sandbox = &Sandbox{ID: id}
		return nil
	}

	var sandbox Sandbox
	if err := json.Unmarshal(wire.Sandbox, &sandbox); err != nil {
		return err
	}
	p.Sandbox = &sandbox
	return nil
}
