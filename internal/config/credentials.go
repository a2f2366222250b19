package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrMissingCredentials is returned when the credential file has fewer than
// four non-empty values.
var ErrMissingCredentials = errors.New("credential file must contain four non-empty lines")

// Credentials are the four OAuth1 secrets used for the Twitter API.
type Credentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

// LoadCredentials reads the credential file at path. Values are read one per
// line in the order consumer key, consumer secret, access token, access token
// secret. Any further lines are ignored.
func LoadCredentials(path string) (Credentials, error) {
	f, err := os.Open(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("open credentials: %w", err)
	}
	defer f.Close()

	var values []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() && len(values) < 4 {
		values = append(values, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return Credentials{}, fmt.Errorf("read credentials: %w", err)
	}

	if len(values) < 4 {
		return Credentials{}, fmt.Errorf("%s: %w (found %d)", path, ErrMissingCredentials, len(values))
	}
	for i, v := range values {
		if v == "" {
			return Credentials{}, fmt.Errorf("%s: line %d is empty: %w", path, i+1, ErrMissingCredentials)
		}
	}

	return Credentials{
		ConsumerKey:       values[0],
		ConsumerSecret:    values[1],
		AccessToken:       values[2],
		AccessTokenSecret: values[3],
	}, nil
}
