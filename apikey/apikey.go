package apikey

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DefaultRCFile is the fallback key file consulted when neither the
// environment nor ECMWF_API_RC_FILE supplies a key.
const DefaultRCFile = "~/.ecmwfapirc"

// Anonymous is the access triple used when no key can be found anywhere.
// It grants access to the public datasets only.
var Anonymous = Key{
	Key:   "anonymous",
	URL:   "https://api.ecmwf.int/v1",
	Email: "anonymous@ecmwf.int",
}

var (
	// ErrNotFound indicates a lookup source held no key at all.
	ErrNotFound = errors.New("no API key found")
	// ErrInvalid indicates a key was found but is unusable.
	ErrInvalid = errors.New("invalid API key")
)

// Key is the credential triple attached to every API call: the token
// itself, the service base URL, and the e-mail address sent in the
// From header.
type Key struct {
	Key   string `json:"key"   validate:"required"`
	URL   string `json:"url"   validate:"required,url"`
	Email string `json:"email" validate:"required,email"`
}

// Lookup consults one credential source. It reports whether a key was
// present at all; a key that is present but unusable returns found=true
// together with an error wrapping [ErrInvalid].
type Lookup func() (key Key, found bool, err error)

// Resolve walks the standard lookup chain and returns the first key found:
//
//  1. the ECMWF_API_KEY / ECMWF_API_URL / ECMWF_API_EMAIL environment
//     variables (all three must be set),
//  2. the file named by ECMWF_API_RC_FILE, if that variable is set
//     (a missing file is an error here, not a fall-through),
//  3. the default ~/.ecmwfapirc file,
//  4. the [Anonymous] triple.
//
// Sources holding no key are skipped; sources holding a broken key abort
// the chain with an error wrapping [ErrInvalid].
func Resolve() (Key, error) {
	key, found, err := FromEnvironment()
	if err != nil {
		return Key{}, err
	}
	if found {
		return key, nil
	}

	if path := os.Getenv("ECMWF_API_RC_FILE"); path != "" {
		key, found, err = FromFile(path)()
		if err != nil {
			return Key{}, err
		}
		if !found {
			return Key{}, fmt.Errorf("%w in %q", ErrNotFound, path)
		}
		return key, nil
	}

	key, found, err = FromFile(DefaultRCFile)()
	if err != nil {
		return Key{}, err
	}
	if found {
		return key, nil
	}

	return Anonymous, nil
}

// FromEnvironment reads the key triple from the ECMWF_API_* environment
// variables. Setting only part of the triple is treated as a broken key
// rather than as no key.
func FromEnvironment() (Key, bool, error) {
	key := Key{
		Key:   os.Getenv("ECMWF_API_KEY"),
		URL:   os.Getenv("ECMWF_API_URL"),
		Email: os.Getenv("ECMWF_API_EMAIL"),
	}

	switch {
	case key.Key == "" && key.URL == "" && key.Email == "":
		return Key{}, false, nil
	case key.Key == "" || key.URL == "" || key.Email == "":
		return Key{}, true, fmt.Errorf("%w: incomplete API key in the environment", ErrInvalid)
	}

	return key, true, nil
}

// FromFile returns a [Lookup] reading the key triple from a JSON rc file,
// the format written by the ECMWF website:
//
//	{"key": "...", "url": "https://api.ecmwf.int/v1", "email": "..."}
//
// A leading ~ in path is expanded to the user's home directory.
func FromFile(path string) Lookup {
	return func() (Key, bool, error) {
		path, err := expandUser(path)
		if err != nil {
			return Key{}, true, fmt.Errorf("resolving rc file path: %w", err)
		}

		f, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			return Key{}, false, nil
		}
		if err != nil {
			return Key{}, true, fmt.Errorf("%w: reading %q: %w", ErrInvalid, path, err)
		}
		defer f.Close()

		v := viper.New()
		v.SetConfigType("json")
		if err := v.ReadConfig(f); err != nil {
			return Key{}, true, fmt.Errorf("%w: malformed API key in %q", ErrInvalid, path)
		}

		key := Key{
			Key:   v.GetString("key"),
			URL:   v.GetString("url"),
			Email: v.GetString("email"),
		}
		if err := Validate(key); err != nil {
			return Key{}, true, fmt.Errorf("%w in %q: %w", ErrInvalid, path, err)
		}

		return key, true, nil
	}
}

// expandUser rewrites a leading ~ to the current user's home directory.
func expandUser(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}

	return filepath.Clean(path), nil
}
