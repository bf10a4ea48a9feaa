// SPDX-License-Identifier: MPL-2.0

// Package vsix models the identity and manifest of an editor extension
// distributed as a VSIX archive.
//
// A VSIX archive carries a JSON manifest (the extension's package.json) at a
// well-known internal path. The manifest yields the extension's identity:
// a canonical id of the form "publisher.name" plus a semantic version. The
// identity is immutable once parsed — every downstream component (extractor,
// installer, registry) keys on it.
package vsix

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultVersion is assumed when a manifest omits the version field.
const DefaultVersion = "1.0.0"

// idRegex validates the canonical extension id "publisher.name". Both
// segments must start with an alphanumeric character and may contain
// hyphens and underscores after that.
var idRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9\-_]*\.[a-zA-Z0-9][a-zA-Z0-9\-_]*$`)

// ErrInvalidManifest is the sentinel error wrapped by InvalidManifestError.
var ErrInvalidManifest = errors.New("invalid extension manifest")

// InvalidManifestError is returned when a manifest is missing a required
// field or a field has the wrong shape. It wraps ErrInvalidManifest for
// errors.Is() compatibility.
type InvalidManifestError struct {
	// Field is the manifest field that failed validation.
	Field string
	// Reason describes the specific problem.
	Reason string
}

// Error implements the error interface for InvalidManifestError.
func (e *InvalidManifestError) Error() string {
	return fmt.Sprintf("invalid extension manifest: field %q %s", e.Field, e.Reason)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidManifestError) Unwrap() error {
	return ErrInvalidManifest
}

// Identity is the immutable identity of an extension.
type Identity struct {
	// Publisher is the publisher segment of the canonical id.
	Publisher string
	// Name is the name segment of the canonical id.
	Name string
	// Version is the extension version (never empty; defaults to DefaultVersion).
	Version string
}

// ID returns the canonical extension id "publisher.name".
func (id Identity) ID() string {
	return id.Publisher + "." + id.Name
}

// DirName returns the install directory name "publisher.name-version".
func (id Identity) DirName() string {
	return id.ID() + "-" + id.Version
}

// String returns a human-readable representation of the identity.
func (id Identity) String() string {
	return id.ID() + "@" + id.Version
}

// Manifest is the extension metadata embedded in a VSIX archive.
type Manifest struct {
	// Name is the extension name (required, non-empty).
	Name string `json:"name"`
	// Publisher is the extension publisher (required, non-empty).
	Publisher string `json:"publisher"`
	// Version is the extension version (optional; defaults to DefaultVersion).
	Version string `json:"version,omitempty"`
	// DisplayName is the human-friendly name (optional).
	DisplayName string `json:"displayName,omitempty"`
	// Description is a short description (optional).
	Description string `json:"description,omitempty"`
}

// Identity derives the immutable identity from the manifest. The manifest
// must have been validated first; an unvalidated manifest may yield an
// identity with an empty version.
func (m *Manifest) Identity() Identity {
	version := m.Version
	if version == "" {
		version = DefaultVersion
	}
	return Identity{Publisher: m.Publisher, Name: m.Name, Version: version}
}

// ParseManifest decodes and validates a manifest from raw JSON bytes.
// Validation failures are InvalidManifestError values — a manifest with a
// missing publisher or a non-string version is rejected, never silently
// defaulted.
func ParseManifest(data []byte) (*Manifest, error) {
	// Decode into a generic map first so type violations (e.g. a numeric
	// version) surface as validation errors instead of json.Unmarshal noise.
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing extension manifest: %w", err)
	}

	m := &Manifest{}
	var err error
	if m.Name, err = requiredString(raw, "name"); err != nil {
		return nil, err
	}
	if m.Publisher, err = requiredString(raw, "publisher"); err != nil {
		return nil, err
	}
	if m.Version, err = optionalString(raw, "version"); err != nil {
		return nil, err
	}
	if m.DisplayName, err = optionalString(raw, "displayName"); err != nil {
		return nil, err
	}
	if m.Description, err = optionalString(raw, "description"); err != nil {
		return nil, err
	}

	id := m.Identity()
	if !idRegex.MatchString(id.ID()) {
		return nil, &InvalidManifestError{
			Field:  "publisher.name",
			Reason: fmt.Sprintf("derived id %q is not a valid extension id", id.ID()),
		}
	}
	return m, nil
}

// ParseID splits a canonical id "publisher.name" into its segments.
// The id must match the identity pattern.
func ParseID(id string) (publisher, name string, err error) {
	if !idRegex.MatchString(id) {
		return "", "", &InvalidManifestError{
			Field:  "publisher.name",
			Reason: fmt.Sprintf("%q is not a valid extension id", id),
		}
	}
	dot := strings.Index(id, ".")
	return id[:dot], id[dot+1:], nil
}

// ValidID reports whether id matches the canonical "publisher.name" pattern.
func ValidID(id string) bool {
	return idRegex.MatchString(id)
}

func requiredString(raw map[string]any, field string) (string, error) {
	v, ok := raw[field]
	if !ok {
		return "", &InvalidManifestError{Field: field, Reason: "is required"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &InvalidManifestError{Field: field, Reason: "must be a string"}
	}
	if strings.TrimSpace(s) == "" {
		return "", &InvalidManifestError{Field: field, Reason: "must not be empty"}
	}
	return s, nil
}

func optionalString(raw map[string]any, field string) (string, error) {
	v, ok := raw[field]
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &InvalidManifestError{Field: field, Reason: "must be a string"}
	}
	return s, nil
}
