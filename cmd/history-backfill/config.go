package main

import (
	"errors"
	"fmt"

	"github.com/theimaginaryfoundation/guest-pulse/pulse/pipeline"
)

const lineAll = "all"

func (c Config) Validate() error {
	switch c.Line {
	case pipeline.LineSurveys, pipeline.LineReviews, lineAll:
	default:
		return fmt.Errorf("-line must be surveys, reviews or all, got %q", c.Line)
	}
	if c.Input != "" && c.Line == lineAll {
		return errors.New("-input needs -line surveys or -line reviews")
	}
	if c.Rescore && c.Line == pipeline.LineSurveys {
		return errors.New("-rescore applies to reviews only")
	}
	return nil
}

func defaultConfig() Config {
	return Config{Line: lineAll}
}

func (c Config) lines() []string {
	if c.Line == lineAll {
		return []string{pipeline.LineSurveys, pipeline.LineReviews}
	}
	return []string{c.Line}
}

func (c Config) runs(line string) bool {
	return c.Line == lineAll || c.Line == line
}
