package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/stockcore/auth"
)

type usersFile struct {
	Users []auth.User `yaml:"users"`
}

// LoadUsers reads the YAML user seed:
//
//	users:
//	  - id: 1
//	    login: admin
//	    password_hash: $argon2id$v=19$m=19456,t=2,p=1$...
//	    access_level: admin
func LoadUsers(path string) (*auth.StaticUsers, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading users file: %w", err)
	}
	var f usersFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing users file %s: %w", path, err)
	}
	users, err := auth.NewStaticUsers(f.Users...)
	if err != nil {
		return nil, fmt.Errorf("users file %s: %w", path, err)
	}
	return users, nil
}
