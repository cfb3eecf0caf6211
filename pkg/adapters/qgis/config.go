package qgis

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Defaults applied when params leave a field empty.
const (
	DefaultRegion  = "us-east-1"
	DefaultBucket  = "leapgis"
	DefaultPrefix  = "uploads/"
	DefaultExpiry  = time.Hour
	DefaultTimeout = 30 * time.Second
)

// Params holds QGIS bridge configuration.
// Parsed from adapter.Config.Params using mapstructure; the processing
// service URL comes from adapter.Config.URL.
type Params struct {
	// Endpoint is the S3-compatible host[:port], without scheme.
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`

	// CreateBucket makes the bucket on connect when it is missing.
	CreateBucket bool `mapstructure:"create_bucket"`

	// Prefix is prepended to every object key the bridge writes.
	Prefix string `mapstructure:"prefix"`

	// Expiry bounds the lifetime of presigned URLs.
	Expiry time.Duration `mapstructure:"expiry"`

	// Timeout bounds one processing request.
	Timeout time.Duration `mapstructure:"timeout"`
}

func parseParams(raw map[string]any) (*Params, error) {
	p := &Params{}
	if len(raw) > 0 {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           p,
			WeaklyTypedInput: true,
			ErrorUnused:      true,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(raw); err != nil {
			return nil, fmt.Errorf("invalid qgis params: %w", err)
		}
	}
	p.applyDefaults()
	return p, p.Validate()
}

func (p *Params) applyDefaults() {
	if p.Region == "" {
		p.Region = DefaultRegion
	}
	if p.Bucket == "" {
		p.Bucket = DefaultBucket
	}
	if p.Prefix == "" {
		p.Prefix = DefaultPrefix
	}
	if !strings.HasSuffix(p.Prefix, "/") {
		p.Prefix += "/"
	}
	if p.Expiry <= 0 {
		p.Expiry = DefaultExpiry
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
}

// Validate checks that the object store can be reached.
func (p *Params) Validate() error {
	if strings.TrimSpace(p.Endpoint) == "" {
		return errors.New("qgis: endpoint is required")
	}
	if strings.Contains(p.Endpoint, "://") {
		return errors.New("qgis: endpoint must be host[:port] without scheme")
	}
	if strings.TrimSpace(p.AccessKey) == "" || strings.TrimSpace(p.SecretKey) == "" {
		return errors.New("qgis: access_key and secret_key are required")
	}
	return nil
}
