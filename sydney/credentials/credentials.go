// Package credentials loads the externally supplied cookie jar used to
// authenticate against the chat service.
//
// Two file shapes are accepted: the browser-export list
// [{"name": "...", "value": "...", ...}] and a flat {"name": "value"} object.
// A missing or blank file means anonymous access.
package credentials

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ZanzyTHEbar/sydney-stream/sydney/chathub"
)

type exportedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Parse decodes either supported cookies shape.
func Parse(data []byte) (chathub.Credentials, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return chathub.Credentials{}, nil
	}

	switch data[0] {
	case '[':
		var list []exportedCookie
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("decode cookie list: %w", err)
		}
		creds := make(chathub.Credentials, len(list))
		for _, c := range list {
			if c.Name == "" {
				continue
			}
			creds[c.Name] = c.Value
		}
		return creds, nil
	case '{':
		var flat map[string]string
		if err := json.Unmarshal(data, &flat); err != nil {
			return nil, fmt.Errorf("decode cookie object: %w", err)
		}
		return chathub.Credentials(flat), nil
	default:
		return nil, errors.New("cookies file must hold a JSON list or object")
	}
}

// Load reads and parses a cookies file.
func Load(path string) (chathub.Credentials, error) {
	if path == "" {
		return chathub.Credentials{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return chathub.Credentials{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cookies file: %w", err)
	}
	creds, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return creds, nil
}

// Static is a fixed credential set.
type Static chathub.Credentials

func (s Static) Current() chathub.Credentials {
	return copyCredentials(chathub.Credentials(s))
}

func copyCredentials(c chathub.Credentials) chathub.Credentials {
	out := make(chathub.Credentials, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
