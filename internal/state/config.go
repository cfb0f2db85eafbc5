package state

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/twibridge/hardware/i2c"
	"github.com/temoto/twibridge/hardware/mcu"
	"github.com/temoto/twibridge/helpers"
	tele_config "github.com/temoto/twibridge/internal/tele/config"
	"github.com/temoto/twibridge/log2"
)

const (
	DefaultConfigName  = "twibridge.hcl"
	DefaultHTTPListen  = ":5000"
	DefaultTopicPrefix = "twibridge"
	DefaultIntervalSec = 10
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	LogDebug bool `hcl:"log_debug"`

	Bus struct {
		Driver    string `hcl:"driver"`
		Name      string `hcl:"name"`
		Address   int    `hcl:"address"`
		Register  int    `hcl:"register"`
		FrameSize int    `hcl:"frame_size"`
		LogDebug  bool   `hcl:"log_debug"`
	} `hcl:"bus"`

	Relay struct {
		Count int `hcl:"count"`
	} `hcl:"relay"`

	Telemetry struct {
		Fields    []string `hcl:"fields"`
		MinFields int      `hcl:"min_fields"`
	} `hcl:"telemetry"`

	HTTP struct {
		Listen     string `hcl:"listen"`
		CorsOrigin string `hcl:"cors_origin"`
	} `hcl:"http"`

	Tele tele_config.Config `hcl:"tele"`

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

// Validate fills defaults and checks ranges.
func (c *Config) Validate() error {
	errs := make([]error, 0, 4)
	if c.Bus.Driver == "" {
		c.Bus.Driver = i2c.DriverDev
	}
	if c.Bus.Driver == i2c.DriverDev && c.Bus.Name == "" {
		c.Bus.Name = "1"
	}
	if c.Bus.Address == 0 {
		c.Bus.Address = mcu.DefaultAddress
	}
	// 7 bit address, outside reserved ranges
	if c.Bus.Address < 0x03 || c.Bus.Address > 0x77 {
		errs = append(errs, errors.NotValidf("config: bus.address=%#x", c.Bus.Address))
	}
	if c.Bus.Register < 0 || c.Bus.Register > 0xff {
		errs = append(errs, errors.NotValidf("config: bus.register=%d", c.Bus.Register))
	}
	if c.Bus.FrameSize == 0 {
		c.Bus.FrameSize = mcu.MaxFrame
	}
	if c.Bus.FrameSize < 1 || c.Bus.FrameSize > mcu.MaxFrame {
		errs = append(errs, errors.NotValidf("config: bus.frame_size=%d max=%d", c.Bus.FrameSize, mcu.MaxFrame))
	}
	if c.Relay.Count == 0 {
		c.Relay.Count = mcu.DefaultRelayCount
	}
	if c.Relay.Count < 1 || c.Relay.Count > mcu.MaxRelays {
		errs = append(errs, errors.NotValidf("config: relay.count=%d range 1..%d", c.Relay.Count, mcu.MaxRelays))
	}
	if len(c.Telemetry.Fields) == 0 {
		c.Telemetry.Fields = mcu.DefaultFields
	}
	if c.Telemetry.MinFields < 0 || c.Telemetry.MinFields > len(c.Telemetry.Fields) {
		errs = append(errs, errors.NotValidf("config: telemetry.min_fields=%d", c.Telemetry.MinFields))
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = DefaultHTTPListen
	}
	if c.Tele.TopicPrefix == "" {
		c.Tele.TopicPrefix = DefaultTopicPrefix
	}
	// hcl can't tell unset from 0, so negative turns polling off
	if c.Tele.IntervalSec == 0 {
		c.Tele.IntervalSec = DefaultIntervalSec
	}
	if c.Tele.Enable && c.Tele.Broker == "" {
		errs = append(errs, errors.NotValidf("config: tele.broker empty"))
	}
	return helpers.FoldErrors(errs)
}

// String is safe to log, tele password is masked.
func (c *Config) String() string {
	tele := c.Tele
	if tele.Password != "" {
		tele.Password = "***"
	}
	return fmt.Sprintf("log_debug=%t bus=%+v relay=%+v telemetry=%+v http=%+v tele=%+v",
		c.LogDebug, c.Bus, c.Relay, c.Telemetry, c.HTTP, tele)
}

func (c *Config) MCU() mcu.Config {
	return mcu.Config{
		Address:    byte(c.Bus.Address),
		Register:   byte(c.Bus.Register),
		FrameSize:  c.Bus.FrameSize,
		RelayCount: c.Relay.Count,
		Fields:     c.Telemetry.Fields,
		MinFields:  c.Telemetry.MinFields,
	}
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			*errs = append(*errs, errors.NotFoundf("config required name=%s path=%s", source.Name, norm))
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	if err = hcl.Unmarshal(bs, c); err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config unmarshal source=%s", source.Name))
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		if _, ok := c.includeSeen[fs.Normalize(include.Name)]; ok {
			*errs = append(*errs, errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name))
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig reads sources in order, later values override earlier ones, then Validate.
func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.Errorf("code error ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		if err := osfs.SetBase(dir); err != nil {
			return nil, err
		}
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if len(errs) == 0 {
		errs = append(errs, c.Validate())
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
