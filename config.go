package main

import (
	"github.com/kovetskiy/ko"
	"github.com/reconquest/karma-go"
	"github.com/reconquest/pkg/log"
	"gopkg.in/yaml.v2"
)

const (
	DEFAULT_CONFIG_PATH   = "/etc/buildhook/buildhook.conf"
	DEFAULT_DATABASE_PATH = "/var/lib/buildhook/buildhook.db"
)

type Config struct {
	ListenAddress string `yaml:"listen_address" env:"BUILDHOOK_LISTEN_ADDRESS" default:":8585" required:"true"`

	Log struct {
		Debug bool `yaml:"debug" env:"BUILDHOOK_LOG_DEBUG"`
		Trace bool `yaml:"trace" env:"BUILDHOOK_LOG_TRACE"`
	} `yaml:"log"`

	Database struct {
		Path string `yaml:"path" env:"BUILDHOOK_DATABASE_PATH" default:"/var/lib/buildhook/buildhook.db" required:"true"`
	} `yaml:"database"`
}

func LoadConfig(path string) (*Config, error) {
	log.Infof(karma.Describe("path", path), "loading configuration")

	var config Config
	err := ko.Load(path, &config, yaml.Unmarshal, ko.RequireFile(false))
	if err != nil {
		return nil, err
	}

	return &config, nil
}
