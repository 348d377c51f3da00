package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	AccessKeyEnv = "AWS_ACCESS_KEY_ID"
	SecretKeyEnv = "AWS_SECRET_ACCESS_KEY"
)

// Credentials for the object store.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// LoadCredentials reads the object store credentials from the environment. Values missing
// there are taken from a dotenv file: path, or $XDG_CONFIG_HOME/kfp-notebook/credentials.env
// (~/.config/kfp-notebook/credentials.env) when path is empty. A missing default file is not
// an error, and missing credentials only surface on the first storage call.
func LoadCredentials(path string) (Credentials, error) {
	c := Credentials{AccessKey: os.Getenv(AccessKeyEnv), SecretKey: os.Getenv(SecretKeyEnv)}
	if c.AccessKey != "" && c.SecretKey != "" {
		return c, nil
	}
	optional := path == ""
	if optional {
		path = filepath.Join(filepath.Dir(DefaultConfigPath()), "credentials.env")
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return c, fmt.Errorf("read credentials: %w", err)
	}
	if c.AccessKey == "" {
		c.AccessKey = values[AccessKeyEnv]
	}
	if c.SecretKey == "" {
		c.SecretKey = values[SecretKeyEnv]
	}
	return c, nil
}
