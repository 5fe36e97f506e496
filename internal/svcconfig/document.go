// Package svcconfig reads and writes the streaming service's configuration
// document. The service owns the file and may rewrite it at any time, so
// every mutation here is read-full, mutate in memory, write-full — never a
// partial edit.
package svcconfig

import (
	"encoding/json"

	"streamhostd/pkg/types"
)

// ManagedAppName is the reserved name of the application entry this daemon
// guarantees exists after setup. It must never be duplicated.
const ManagedAppName = "Desktop (Virtual)"

// Document is the service's configuration: a small set of known scalar
// settings, the application list, and a passthrough map for every key this
// daemon does not model. Unknown keys round-trip verbatim.
type Document struct {
	Hostname   *string `json:"hostname,omitempty"`
	Port       *int    `json:"port,omitempty"`
	OutputName *string `json:"output_name,omitempty"`
	LogLevel   *string `json:"min_log_level,omitempty"`

	Apps []types.AppEntry `json:"apps"`

	// Extra holds keys the service understands but this daemon does not.
	Extra map[string]json.RawMessage `json:"-"`
}

// knownDoc mirrors Document's typed fields for (un)marshalling without
// recursing into the custom methods.
type knownDoc struct {
	Hostname   *string          `json:"hostname,omitempty"`
	Port       *int             `json:"port,omitempty"`
	OutputName *string          `json:"output_name,omitempty"`
	LogLevel   *string          `json:"min_log_level,omitempty"`
	Apps       []types.AppEntry `json:"apps"`
}

var knownKeys = map[string]struct{}{
	"hostname":      {},
	"port":          {},
	"output_name":   {},
	"min_log_level": {},
	"apps":          {},
}

// UnmarshalJSON splits incoming keys into typed fields and the passthrough
// map so nothing the service wrote is lost on the next write.
func (d *Document) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var known knownDoc
	if err := json.Unmarshal(b, &known); err != nil {
		return err
	}
	d.Hostname = known.Hostname
	d.Port = known.Port
	d.OutputName = known.OutputName
	d.LogLevel = known.LogLevel
	d.Apps = known.Apps
	d.Extra = nil
	for k, v := range raw {
		if _, ok := knownKeys[k]; ok {
			continue
		}
		if d.Extra == nil {
			d.Extra = map[string]json.RawMessage{}
		}
		d.Extra[k] = v
	}
	return nil
}

// MarshalJSON merges the typed fields back with the passthrough keys.
// Typed fields win on collision.
func (d Document) MarshalJSON() ([]byte, error) {
	apps := d.Apps
	if apps == nil {
		apps = []types.AppEntry{}
	}
	kb, err := json.Marshal(knownDoc{
		Hostname:   d.Hostname,
		Port:       d.Port,
		OutputName: d.OutputName,
		LogLevel:   d.LogLevel,
		Apps:       apps,
	})
	if err != nil {
		return nil, err
	}
	merged := map[string]json.RawMessage{}
	for k, v := range d.Extra {
		if _, ok := knownKeys[k]; ok {
			continue
		}
		merged[k] = v
	}
	var knownRaw map[string]json.RawMessage
	if err := json.Unmarshal(kb, &knownRaw); err != nil {
		return nil, err
	}
	for k, v := range knownRaw {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// FindApp returns the index of the app with the given name, or -1.
func (d *Document) FindApp(name string) int {
	for i := range d.Apps {
		if d.Apps[i].Name == name {
			return i
		}
	}
	return -1
}

// UpsertApp replaces the entry with the same name or appends a new one.
// The list stays keyed by name: applying the same entry twice yields one.
func (d *Document) UpsertApp(entry types.AppEntry) {
	if i := d.FindApp(entry.Name); i >= 0 {
		d.Apps[i] = entry
		return
	}
	d.Apps = append(d.Apps, entry)
}
