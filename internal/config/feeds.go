package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

type feedsFile struct {
	Feeds []FeedSource `yaml:"feeds"`
}

// LoadFeedsFile reads an ordered feed list from a YAML file of the form
//
//	feeds:
//	  - category: Sports
//	    url: https://example.com/rss
func LoadFeedsFile(path string) ([]FeedSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read feeds file %s", path)
	}

	var f feedsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "config: parse feeds file %s", path)
	}
	if len(f.Feeds) == 0 {
		return nil, eris.Errorf("config: feeds file %s lists no feeds", path)
	}
	return f.Feeds, nil
}
