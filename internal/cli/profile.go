package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultServer is used when neither --server nor the profile names one
const DefaultServer = "http://localhost:8080"

// Profile is the persisted CLI session
type Profile struct {
	Server       string `yaml:"server"`
	Username     string `yaml:"username,omitempty"`
	AccessToken  string `yaml:"access_token,omitempty"`
	RefreshToken string `yaml:"refresh_token,omitempty"`
}

func resolveProfilePath() (string, error) {
	if profilePath != "" {
		return profilePath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".rulectl", "profile.yaml"), nil
}

// LoadProfile reads the profile at path. A missing file yields an empty profile.
func LoadProfile(path string) (*Profile, error) {
	p := &Profile{}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return p, nil
		}
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	return p, nil
}

// Save writes the profile with owner-only permissions
func (p *Profile) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// ServerURL applies the --server override and the default
func (p *Profile) ServerURL() string {
	s := p.Server
	if serverURL != "" {
		s = serverURL
	}
	if s == "" {
		s = DefaultServer
	}
	return strings.TrimRight(s, "/")
}

// session loads the profile together with its path
func session() (*Profile, string, error) {
	path, err := resolveProfilePath()
	if err != nil {
		return nil, "", err
	}
	p, err := LoadProfile(path)
	if err != nil {
		return nil, "", err
	}
	return p, path, nil
}

// authedClient returns a client for commands that need a logged-in session
func authedClient() (*Client, error) {
	p, _, err := session()
	if err != nil {
		return nil, err
	}
	if p.AccessToken == "" {
		return nil, errors.New("not logged in; run 'rulectl login' first")
	}
	return NewClient(p.ServerURL(), p.AccessToken), nil
}
