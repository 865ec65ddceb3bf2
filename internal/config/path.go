package config

import (
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/tzrikka/xdg"
)

const (
	configDirName  = "wsd"
	configFileName = "config.toml"
)

// FilePath returns the path to wsd's TOML config file under the user's XDG
// config home, creating an empty file there if one doesn't already exist.
func FilePath() (altsrc.StringSourcer, error) {
	path, err := xdg.CreateFile(xdg.ConfigHome, configDirName, configFileName)
	if err != nil {
		return "", err
	}
	return altsrc.StringSourcer(path), nil
}
