package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BindFlags binds every flag named like a configuration key onto v, so a
// flag given on the command line overrides file and environment values.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for _, key := range v.AllKeys() {
		f := flags.Lookup(key)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", key, err)
		}
	}
	return nil
}

// LoadEnvFile adds the variables of a dotenv file to the environment, not
// overriding variables already set. A missing file is ignored unless required.
func LoadEnvFile(path string, required bool) error {
	err := godotenv.Load(path)
	if err != nil && !required && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("env file: %w", err)
	}
	return nil
}
