// Copyright Bio312 course staff, 2026. All rights reserved.

// Package secrets loads per-user values from a directory of plain-text
// files: the filename is the key, the trimmed contents the value. Used
// for the contact email the public APIs ask for in the User-Agent.
//
// Supported key files: contact-email.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ContactKey is the key file holding the polite-use contact email.
const ContactKey = "contact-email"

// Load reads all files in dir and returns a map of filename to trimmed
// contents. A missing directory is not an error; Load returns an empty
// map. Unreadable files produce a warning on stderr but do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	values := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read secret %s: %v\n", entry.Name(), err)
			continue
		}

		if v := strings.TrimSpace(string(data)); v != "" {
			values[entry.Name()] = v
		}
	}

	return values, nil
}

// UserAgent builds the outbound User-Agent string, appending the contact
// email from values when one is configured.
func UserAgent(base string, values map[string]string) string {
	if email := values[ContactKey]; email != "" {
		return fmt.Sprintf("%s (%s)", base, email)
	}
	return base
}
