// SPDX-License-Identifier: BSD-3-Clause

package fancond

import "fmt"

const (
	DefaultServiceName        = "fancond"
	DefaultServiceDescription = "Fan control service for host thermal management"
	DefaultServiceVersion     = "1.0.0"
	DefaultHwmonPath          = "/sys/class/hwmon"
	DefaultConfigPath         = "/etc/fancond/fancond.ini"
)

type config struct {
	serviceName        string
	serviceDescription string
	serviceVersion     string
	hwmonPath          string
	configPath         string
}

// Option configures a Service at construction time.
type Option interface {
	apply(*config)
}

type serviceNameOption struct{ name string }

func (o *serviceNameOption) apply(c *config) { c.serviceName = o.name }

// WithServiceName overrides the NATS micro service name.
func WithServiceName(name string) Option {
	return &serviceNameOption{name: name}
}

type serviceDescriptionOption struct{ description string }

func (o *serviceDescriptionOption) apply(c *config) { c.serviceDescription = o.description }

// WithServiceDescription overrides the NATS micro service description.
func WithServiceDescription(description string) Option {
	return &serviceDescriptionOption{description: description}
}

type hwmonPathOption struct{ path string }

func (o *hwmonPathOption) apply(c *config) { c.hwmonPath = o.path }

// WithHwmonPath overrides the hwmon root used for sysfs fan/sensor
// discovery and binding.
func WithHwmonPath(path string) Option {
	return &hwmonPathOption{path: path}
}

type configPathOption struct{ path string }

func (o *configPathOption) apply(c *config) { c.configPath = o.path }

// WithConfigPath overrides the on-disk ini file the controller's devices
// and tunables are persisted to and loaded from.
func WithConfigPath(path string) Option {
	return &configPathOption{path: path}
}

func (c *config) Validate() error {
	if c.serviceName == "" {
		return fmt.Errorf("%w: service name cannot be empty", ErrInvalidConfiguration)
	}
	if c.serviceVersion == "" {
		return fmt.Errorf("%w: service version cannot be empty", ErrInvalidConfiguration)
	}
	if c.hwmonPath == "" {
		return fmt.Errorf("%w: hwmon path cannot be empty", ErrInvalidConfiguration)
	}
	if c.configPath == "" {
		return fmt.Errorf("%w: config path cannot be empty", ErrInvalidConfiguration)
	}
	return nil
}
