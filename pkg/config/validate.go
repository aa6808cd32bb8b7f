package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their config key rather than the Go name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks struct tags and the few rules that span sections.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, describe(fe))
		}
		return errors.New(strings.Join(msgs, "; "))
	}

	if cfg.Gate.Probe == "postgres" && cfg.Database.Host == "" {
		return errors.New("gate.probe: 'postgres' requires database.host")
	}
	if cfg.Migrations.Enabled && cfg.Migrations.Engine == "migrate" && cfg.Database.Host == "" {
		return errors.New("migrations.engine: 'migrate' requires database.host")
	}
	return nil
}

// describe renders "gate.interval: failed 'gt' (0)".
func describe(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:] // drop the root type name
	}
	if fe.Param() != "" {
		return fmt.Sprintf("%s: failed '%s' (%s)", ns, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s: failed '%s'", ns, fe.Tag())
}
