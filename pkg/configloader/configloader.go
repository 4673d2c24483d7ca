// Package configloader loads YAML configuration with environment
// variable expansion and optional override files.
package configloader

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/effective-security/xlog"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var logger = xlog.NewPackageLogger("github.com/fitpulse/gateway/pkg", "configloader")

// Factory provides the ability to load configuration files
type Factory struct {
	envPrefix   string
	searchDirs  []string
	overrides   []string
	environment string
}

// NewFactory returns a new configuration factory.
// searchDirs are additional folders probed for relative file names,
// envPrefix qualifies environment variables used in `${VAR}` expansion.
func NewFactory(searchDirs []string, envPrefix string) (*Factory, error) {
	return &Factory{
		envPrefix:  envPrefix,
		searchDirs: searchDirs,
	}, nil
}

// WithOverride specifies an additional file merged over the loaded configuration
func (f *Factory) WithOverride(file string) *Factory {
	f.overrides = append(f.overrides, file)
	return f
}

// WithEnvironment sets the value for the ${ENVIRONMENT} variable
func (f *Factory) WithEnvironment(env string) *Factory {
	f.environment = env
	return f
}

// GetAbsFilename returns absolute path for the file from the relative path to projFolder
func GetAbsFilename(file, projFolder string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	expanded, err := homedir.Expand(file)
	if err != nil {
		return "", errors.WithStack(err)
	}
	if filepath.IsAbs(expanded) {
		return expanded, nil
	}
	abs, err := filepath.Abs(filepath.Join(projFolder, expanded))
	if err != nil {
		return "", errors.WithStack(err)
	}
	return abs, nil
}

// Load reads the configuration from file into config,
// and returns the absolute path of the loaded file
func (f *Factory) Load(file string, config any) (string, error) {
	found, err := f.resolve(file)
	if err != nil {
		return "", err
	}

	err = f.unmarshalFile(found, config)
	if err != nil {
		return found, err
	}

	for _, o := range f.overrides {
		op, err := f.resolve(o)
		if err != nil {
			return found, err
		}
		logger.KV(xlog.DEBUG, "override", op)
		err = f.unmarshalFile(op, config)
		if err != nil {
			return found, err
		}
	}

	return found, nil
}

func (f *Factory) unmarshalFile(file string, config any) error {
	b, err := os.ReadFile(file)
	if err != nil {
		return errors.WithMessagef(err, "unable to read configuration file")
	}
	err = yaml.Unmarshal([]byte(f.expand(string(b))), config)
	if err != nil {
		return errors.WithMessagef(err, "unable to parse configuration file %q", file)
	}
	return nil
}

func (f *Factory) resolve(file string) (string, error) {
	file, err := homedir.Expand(file)
	if err != nil {
		return "", errors.WithStack(err)
	}
	if filepath.IsAbs(file) {
		return file, nil
	}
	if fileExists(file) {
		return filepath.Abs(file)
	}
	for _, dir := range f.searchDirs {
		name := filepath.Join(dir, file)
		if fileExists(name) {
			return filepath.Abs(name)
		}
	}
	return "", errors.Errorf("file %q not found in %v", file, f.searchDirs)
}

// expand replaces `${VAR}` references with prefixed environment variables,
// falling back to the unprefixed variable and well-known values
func (f *Factory) expand(s string) string {
	return os.Expand(s, func(name string) string {
		if v, ok := os.LookupEnv(f.envPrefix + name); ok {
			return v
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		switch strings.ToUpper(name) {
		case "ENVIRONMENT":
			if f.environment != "" {
				return f.environment
			}
		case "HOSTNAME", "NODENAME":
			hn, _ := os.Hostname()
			return hn
		}
		return ""
	})
}

func fileExists(name string) bool {
	fi, err := os.Stat(name)
	return err == nil && !fi.IsDir()
}
