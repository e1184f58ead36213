// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2025-2026 Embedfleet Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package manifest

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// MimeType is the declared encoding of a source payload.
type MimeType string

const (
	MimeOctetStream MimeType = "application/octet-stream"
	MimeXZ          MimeType = "application/x-xz"
	MimeZstdBidiff  MimeType = "application/zstd-bidiff"
)

// UnmarshalJSON implements json.Unmarshaler.
func (m *MimeType) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch mime := MimeType(v); mime {
	case MimeOctetStream, MimeXZ, MimeZstdBidiff:
		*m = mime
		return nil
	}
	return fmt.Errorf("cannot parse %q as a source mime type", v)
}

// Location is the origin of a source payload, either a path on the
// local filesystem or a remote https URL.
type Location struct {
	// Path is set for local sources.
	Path string
	// URL is set for remote sources.
	URL string
}

func (l *Location) IsLocal() bool {
	return l.Path != ""
}

func (l *Location) IsRemote() bool {
	return l.URL != ""
}

func (l *Location) String() string {
	if l.IsLocal() {
		return l.Path
	}
	return l.URL
}

// ParseLocation parses a source origin. Accepted forms are https URLs,
// file URLs, and bare local paths. Plain http is rejected.
func ParseLocation(s string) (*Location, error) {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		// not URL-shaped, treat as a local path
		return &Location{Path: s}, nil
	}
	switch u.Scheme {
	case "https":
		return &Location{URL: s}, nil
	case "file":
		if u.Path == "" {
			return nil, fmt.Errorf("cannot extract a file path from %q", s)
		}
		return &Location{Path: u.Path}, nil
	case "http":
		return nil, fmt.Errorf("cannot use plain http source %q, only https is supported", s)
	}
	return nil, fmt.Errorf("cannot use source %q with unsupported scheme %q", s, u.Scheme)
}

// MarshalJSON implements json.Marshaler.
func (l Location) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Location) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := ParseLocation(v)
	if err != nil {
		return err
	}
	*l = *parsed
	return nil
}

// Source describes where a component's payload comes from and what it
// must look like once fetched. The hash covers the downloaded blob,
// which is not necessarily the hash of the final written component.
type Source struct {
	Hash     string   `json:"hash"`
	MimeType MimeType `json:"mime_type"`
	Name     string   `json:"name"`
	Size     uint64   `json:"size"`
	URL      Location `json:"url"`
}

// UniqueName returns a name for the source that is stable across
// claims referring to the same payload.
func (s *Source) UniqueName() string {
	return fmt.Sprintf("%s-%s", s.Name, s.Hash)
}
