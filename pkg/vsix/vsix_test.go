// SPDX-License-Identifier: MPL-2.0

package vsix

import (
	"errors"
	"testing"
)

func TestParseManifest(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantID  string
		wantVer string
		wantErr bool
	}{
		{
			name:    "valid manifest with version",
			json:    `{"name": "python", "publisher": "ms-python", "version": "2024.2.0"}`,
			wantID:  "ms-python.python",
			wantVer: "2024.2.0",
		},
		{
			name:    "version defaults when absent",
			json:    `{"name": "tool", "publisher": "acme"}`,
			wantID:  "acme.tool",
			wantVer: DefaultVersion,
		},
		{
			name:    "optional display name and description",
			json:    `{"name": "tool", "publisher": "acme", "displayName": "Tool", "description": "d"}`,
			wantID:  "acme.tool",
			wantVer: DefaultVersion,
		},
		{
			name:    "missing name",
			json:    `{"publisher": "acme"}`,
			wantErr: true,
		},
		{
			name:    "missing publisher",
			json:    `{"name": "tool"}`,
			wantErr: true,
		},
		{
			name:    "empty publisher",
			json:    `{"name": "tool", "publisher": "  "}`,
			wantErr: true,
		},
		{
			name:    "numeric version rejected, not defaulted",
			json:    `{"name": "tool", "publisher": "acme", "version": 2}`,
			wantErr: true,
		},
		{
			name:    "numeric name rejected",
			json:    `{"name": 7, "publisher": "acme"}`,
			wantErr: true,
		},
		{
			name:    "id charset violation",
			json:    `{"name": "to ol", "publisher": "acme"}`,
			wantErr: true,
		},
		{
			name:    "leading hyphen in name segment",
			json:    `{"name": "-tool", "publisher": "acme"}`,
			wantErr: true,
		},
		{
			name:    "not json at all",
			json:    `this is not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseManifest([]byte(tt.json))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got manifest %+v", m)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			id := m.Identity()
			if id.ID() != tt.wantID {
				t.Errorf("id = %q, want %q", id.ID(), tt.wantID)
			}
			if id.Version != tt.wantVer {
				t.Errorf("version = %q, want %q", id.Version, tt.wantVer)
			}
		})
	}
}

func TestParseManifestErrorWrapsSentinel(t *testing.T) {
	_, err := ParseManifest([]byte(`{"name": "tool"}`))
	if !errors.Is(err, ErrInvalidManifest) {
		t.Fatalf("error does not wrap ErrInvalidManifest: %v", err)
	}
	var fieldErr *InvalidManifestError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("error is not an InvalidManifestError: %v", err)
	}
	if fieldErr.Field != "publisher" {
		t.Errorf("field = %q, want %q", fieldErr.Field, "publisher")
	}
}

func TestIdentityDirName(t *testing.T) {
	id := Identity{Publisher: "ms-python", Name: "python", Version: "2024.2.0"}
	if got, want := id.DirName(), "ms-python.python-2024.2.0"; got != want {
		t.Errorf("DirName() = %q, want %q", got, want)
	}
	if got, want := id.String(), "ms-python.python@2024.2.0"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		id            string
		wantPublisher string
		wantName      string
		wantErr       bool
	}{
		{id: "ms-python.python", wantPublisher: "ms-python", wantName: "python"},
		{id: "a.b", wantPublisher: "a", wantName: "b"},
		{id: "pub_1.ext-2", wantPublisher: "pub_1", wantName: "ext-2"},
		{id: "nodot", wantErr: true},
		{id: ".leading", wantErr: true},
		{id: "trailing.", wantErr: true},
		{id: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			publisher, name, err := ParseID(tt.id)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.id)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if publisher != tt.wantPublisher || name != tt.wantName {
				t.Errorf("ParseID(%q) = (%q, %q), want (%q, %q)",
					tt.id, publisher, name, tt.wantPublisher, tt.wantName)
			}
		})
	}
}
